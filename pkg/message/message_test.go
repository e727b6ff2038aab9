package message

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"OTP", TypeOTP, false},
		{"TRANSACTION", TypeTransaction, false},
		{"BILL", TypeBill, false},
		{"SECURITY_ALERT", TypeSecurityAlert, false},
		{"UNKNOWN", TypeUnknown, false},
		{"", TypeUnknown, false},
		{"otp", TypeUnknown, true},
		{"SPAM", TypeUnknown, true},
	}

	for _, tc := range cases {
		got, err := ParseType(tc.in)
		if tc.wantErr && err == nil {
			t.Errorf("ParseType(%q): expected error", tc.in)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("ParseType(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseType(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestType_UnmarshalJSON(t *testing.T) {
	var typ Type
	if err := json.Unmarshal([]byte(`"OTP"`), &typ); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != TypeOTP {
		t.Errorf("got %s, want OTP", typ)
	}

	// The enum is closed at the wire boundary.
	err := json.Unmarshal([]byte(`"PROMO"`), &typ)
	if err == nil {
		t.Fatal("expected error for unrecognized type")
	}
	if !strings.Contains(err.Error(), "PROMO") {
		t.Errorf("error should name the rejected value, got %v", err)
	}

	if err := json.Unmarshal([]byte(`42`), &typ); err == nil {
		t.Error("expected error for non-string type")
	}
}

func TestType_Valid(t *testing.T) {
	for _, typ := range []Type{TypeOTP, TypeTransaction, TypeBill, TypeSecurityAlert, TypeUnknown} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if Type("").Valid() {
		t.Error("empty type should not be valid")
	}
	if Type("SPAM").Valid() {
		t.Error("unrecognized type should not be valid")
	}
}

func TestEncryptedEnvelope_HasValidHash(t *testing.T) {
	env := &EncryptedEnvelope{PrecomputedHash: strings.Repeat("ab", 32)}
	if !env.HasValidHash() {
		t.Error("64 hex chars should be a valid hash")
	}

	for _, h := range []string{"", "abcd", strings.Repeat("g", 64), strings.Repeat("ab", 33)} {
		env.PrecomputedHash = h
		if env.HasValidHash() {
			t.Errorf("hash %q should be invalid", h)
		}
	}
}
