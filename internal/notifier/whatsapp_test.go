package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *WhatsAppClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhatsAppClient(&Config{
		APIToken:      "test-token-1234",
		PhoneNumberID: "109361234567890",
		Recipient:     "919876543210",
		BaseURL:       srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSend_Success(t *testing.T) {
	var captured templatePayload
	var gotAuth, gotPath string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	})

	id, err := client.Send(context.Background(), "otp_notification", []string{"BANK", "482913"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC123", id)

	assert.Equal(t, "Bearer test-token-1234", gotAuth)
	assert.Equal(t, "/109361234567890/messages", gotPath)
	assert.Equal(t, "whatsapp", captured.MessagingProduct)
	assert.Equal(t, "919876543210", captured.To)
	assert.Equal(t, "otp_notification", captured.Template.Name)
	require.Len(t, captured.Template.Components, 1)
	require.Len(t, captured.Template.Components[0].Parameters, 2)
	assert.Equal(t, "BANK", captured.Template.Components[0].Parameters[0].Text)
	assert.Equal(t, "482913", captured.Template.Components[0].Parameters[1].Text)
}

func TestSend_APIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	})

	_, err := client.Send(context.Background(), "otp_notification", []string{"BANK", "482913"})
	assert.ErrorIs(t, err, ErrForwardFailed)
}

func TestSend_MalformedResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})

	_, err := client.Send(context.Background(), "otp_notification", []string{"BANK"})
	assert.ErrorIs(t, err, ErrForwardFailed)
}

func TestSend_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewWhatsAppClient(&Config{
		APIToken:      "test-token-1234",
		PhoneNumberID: "109361234567890",
		Recipient:     "919876543210",
		BaseURL:       srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.Send(context.Background(), "otp_notification", []string{"BANK"})
	assert.ErrorIs(t, err, ErrForwardFailed)
}

func TestHealthCheck(t *testing.T) {
	healthy := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/109361234567890", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"109361234567890"}`))
	})
	assert.True(t, healthy.HealthCheck(context.Background()))

	unhealthy := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.False(t, unhealthy.HealthCheck(context.Background()))
}
