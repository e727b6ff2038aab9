package replay

import (
	"math"
	"testing"
	"time"

	"github.com/relaymesh/smsgate/pkg/message"
)

func TestGuard_OTPBoundary(t *testing.T) {
	guard := NewGuard()
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name  string
		diff  int64
		fresh bool
	}{
		{"current", 0, true},
		{"within", 120, true},
		{"exact boundary", 300, true},
		{"one past", 301, false},
		{"ancient", 3600, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := now.Unix() - tc.diff
			if got := guard.IsFresh(ts, message.TypeOTP, now); got != tc.fresh {
				t.Errorf("IsFresh(diff=%d) = %v, want %v", tc.diff, got, tc.fresh)
			}
		})
	}
}

func TestGuard_GenericBoundary(t *testing.T) {
	guard := NewGuard()
	now := time.Unix(1_700_000_000, 0)

	for _, typ := range []message.Type{message.TypeTransaction, message.TypeBill, message.TypeSecurityAlert, message.TypeUnknown} {
		if !guard.IsFresh(now.Unix()-600, typ, now) {
			t.Errorf("%s: 600s old should be fresh", typ)
		}
		if guard.IsFresh(now.Unix()-601, typ, now) {
			t.Errorf("%s: 601s old should be stale", typ)
		}
	}
}

func TestGuard_FutureTimestamps(t *testing.T) {
	guard := NewGuard()
	now := time.Unix(1_700_000_000, 0)

	// Clock skew is symmetric: timestamps slightly in the future pass,
	// far future ones do not.
	if !guard.IsFresh(now.Unix()+300, message.TypeOTP, now) {
		t.Error("300s in the future should be fresh for OTP")
	}
	if guard.IsFresh(now.Unix()+301, message.TypeOTP, now) {
		t.Error("301s in the future should be stale for OTP")
	}
}

func TestGuard_ExtremeTimestamps(t *testing.T) {
	guard := NewGuard()
	now := time.Unix(1_700_000_000, 0)

	// Differences this large overflow int64 when naively converted to a
	// nanosecond Duration; the guard must still reject them.
	cases := []int64{
		now.Unix() + 18_446_744_074,
		now.Unix() + math.MaxInt64/int64(time.Second) + 1,
		math.MaxInt64,
		1, // epoch-adjacent, billions of seconds stale
	}

	for _, ts := range cases {
		for _, typ := range []message.Type{message.TypeOTP, message.TypeBill} {
			if guard.IsFresh(ts, typ, now) {
				t.Errorf("IsFresh(%d, %s) = true, want false", ts, typ)
			}
		}
	}
}

func TestGuard_Overrides(t *testing.T) {
	guard := NewGuard()
	guard.SetWindow(message.TypeOTP, 60*time.Second)
	guard.SetGenericWindow(120 * time.Second)

	now := time.Unix(1_700_000_000, 0)

	if guard.IsFresh(now.Unix()-61, message.TypeOTP, now) {
		t.Error("expected 61s old OTP to be stale with a 60s window")
	}
	if !guard.IsFresh(now.Unix()-60, message.TypeOTP, now) {
		t.Error("expected 60s old OTP to be fresh with a 60s window")
	}
	if guard.IsFresh(now.Unix()-121, message.TypeBill, now) {
		t.Error("expected 121s old bill to be stale with a 120s generic window")
	}

	if guard.Window(message.TypeOTP) != 60*time.Second {
		t.Errorf("unexpected OTP window %v", guard.Window(message.TypeOTP))
	}
	if guard.Window(message.TypeTransaction) != 120*time.Second {
		t.Errorf("unexpected generic window %v", guard.Window(message.TypeTransaction))
	}
}
