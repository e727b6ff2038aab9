// Package server provides the HTTP surface for the gateway.
//
// # Endpoints
//
//   - POST /forward-message - forward an encrypted message (full pipeline)
//   - POST /forward-otp     - legacy alias that forces the OTP type
//   - POST /send-verification-otp - send a verification code to a number
//   - POST /verify-otp            - check a verification code, mint a token
//   - POST /register-user         - complete registration with a token
//   - GET  /health                - per-dependency health report
//
// All mutating endpoints are rate limited per client address. Responses
// never carry internal error detail; the pipeline's error taxonomy maps to
// fixed generic messages.
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/smsgate/internal/config"
	"github.com/relaymesh/smsgate/internal/notifier"
	"github.com/relaymesh/smsgate/internal/pipeline"
	"github.com/relaymesh/smsgate/internal/storage"
	"github.com/relaymesh/smsgate/pkg/message"
	"github.com/relaymesh/smsgate/pkg/security"
	"github.com/relaymesh/smsgate/pkg/templates"
)

const (
	verificationCodeTTL  = 10 * time.Minute
	registrationTokenTTL = 5 * time.Minute
	verificationCodeLen  = 6
)

// Server is the gateway HTTP server.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	httpSrv  *http.Server
	pipeline *pipeline.Pipeline
	store    storage.Store
	notifier notifier.Notifier
	renderer *templates.Renderer

	forwardLimiter *ipLimiter
	verifyLimiter  *ipLimiter
}

// New creates a Server over an assembled pipeline and its collaborators.
func New(
	cfg *config.Config,
	pipe *pipeline.Pipeline,
	store storage.Store,
	n notifier.Notifier,
	renderer *templates.Renderer,
	logger *slog.Logger,
) *Server {
	s := &Server{
		config:         cfg,
		logger:         logger,
		pipeline:       pipe,
		store:          store,
		notifier:       n,
		renderer:       renderer,
		forwardLimiter: newIPLimiter(cfg.Server.RateLimitPerMinute),
		verifyLimiter:  newIPLimiter(cfg.Server.VerifyRateLimitPerMinute),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the route table, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins listening on the specified address.
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", "addr", addr, "tls", s.config.Server.TLS.Enabled)
	if s.config.Server.TLS.Enabled {
		return s.httpSrv.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server and releases storage resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /forward-message",
		s.withRequestID(s.withRateLimit(s.forwardLimiter, s.handleForwardMessage)))
	mux.HandleFunc("POST /forward-otp",
		s.withRequestID(s.withRateLimit(s.forwardLimiter, s.handleForwardOTP)))

	mux.HandleFunc("POST /send-verification-otp",
		s.withRequestID(s.withRateLimit(s.verifyLimiter, s.handleSendVerification)))
	mux.HandleFunc("POST /verify-otp",
		s.withRequestID(s.withRateLimit(s.forwardLimiter, s.handleVerifyCode)))
	mux.HandleFunc("POST /register-user",
		s.withRequestID(s.withRateLimit(s.verifyLimiter, s.handleRegisterUser)))
}

// Middleware

// withRequestID tags each request with a correlation ID, echoed in the
// response header.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r)
	}
}

func (s *Server) withRateLimit(limiter *ipLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientAddr(r)
		if !limiter.allow(ip) {
			s.jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Request/Response types

type forwardRequest struct {
	EncryptedPayload string       `json:"encryptedPayload"`
	HMACSignature    string       `json:"hmacSignature"`
	Sender           string       `json:"sender"`
	MessageType      message.Type `json:"messageType"`
	Timestamp        int64        `json:"timestamp"`
	MessageHash      string       `json:"messageHash,omitempty"`
}

func (r *forwardRequest) validate() error {
	if len(r.EncryptedPayload) < 1 || len(r.EncryptedPayload) > 2048 {
		return fmt.Errorf("encryptedPayload must be 1-2048 characters")
	}
	if len(r.HMACSignature) != 64 {
		return fmt.Errorf("hmacSignature must be 64 hex characters")
	}
	if len(r.Sender) < 1 || len(r.Sender) > 100 {
		return fmt.Errorf("sender must be 1-100 characters")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be a positive integer")
	}
	if r.MessageHash != "" && len(r.MessageHash) != 64 {
		return fmt.Errorf("messageHash must be 64 hex characters")
	}
	return nil
}

type forwardResponse struct {
	Success        bool    `json:"success"`
	Message        string  `json:"message"`
	NotificationID *string `json:"notificationId"`
}

type healthResponse struct {
	Status             string `json:"status"`
	StorageConnected   bool   `json:"storageConnected"`
	WhatsAppConfigured bool   `json:"whatsappConfigured"`
}

type verificationRequest struct {
	WhatsAppNumber string `json:"whatsappNumber"`
}

type verifyCodeRequest struct {
	WhatsAppNumber string `json:"whatsappNumber"`
	OTP            string `json:"otp"`
}

type registerUserRequest struct {
	Name              string `json:"name"`
	WhatsAppNumber    string `json:"whatsappNumber"`
	VerificationToken string `json:"verificationToken"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// Handlers

// handleHealth probes each dependency independently; both must be healthy
// for an overall "healthy" status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storageOK := s.store.HealthCheck(r.Context())
	whatsappOK := s.notifier.HealthCheck(r.Context())

	status := "healthy"
	if !storageOK || !whatsappOK {
		status = "degraded"
	}

	s.jsonResponse(w, healthResponse{
		Status:             status,
		StorageConnected:   storageOK,
		WhatsAppConfigured: whatsappOK,
	}, http.StatusOK)
}

func (s *Server) handleForwardMessage(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, message.TypeUnknown)
}

// handleForwardOTP is the legacy endpoint; it forces the OTP type
// regardless of what the caller declared.
func (s *Server) handleForwardOTP(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, message.TypeOTP)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, forceType message.Type) {
	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	declared := req.MessageType
	if declared == "" {
		declared = message.TypeUnknown
	}
	if forceType != message.TypeUnknown {
		declared = forceType
	}

	env := &message.EncryptedEnvelope{
		Payload:         req.EncryptedPayload,
		Signature:       req.HMACSignature,
		Sender:          req.Sender,
		DeclaredType:    declared,
		Timestamp:       req.Timestamp,
		PrecomputedHash: req.MessageHash,
	}

	result, err := s.pipeline.Process(r.Context(), env)
	if err != nil {
		s.writeForwardError(w, err)
		return
	}

	if result.Duplicate {
		s.jsonResponse(w, forwardResponse{
			Success: true,
			Message: fmt.Sprintf("%s message already forwarded", result.Type),
		}, http.StatusOK)
		return
	}

	s.jsonResponse(w, forwardResponse{
		Success:        true,
		Message:        fmt.Sprintf("%s message forwarded successfully", result.Type),
		NotificationID: &result.NotificationID,
	}, http.StatusOK)
}

// writeForwardError maps the pipeline error taxonomy to generic responses.
// No branch leaks the underlying cause.
func (s *Server) writeForwardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrReplayRejected):
		s.jsonError(w, "request timestamp is invalid", http.StatusBadRequest)
	case errors.Is(err, security.ErrAuthenticationFailed):
		s.jsonError(w, "authentication failed", http.StatusUnauthorized)
	case errors.Is(err, storage.ErrUnavailable):
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, notifier.ErrForwardFailed):
		s.jsonError(w, "failed to deliver notification", http.StatusBadGateway)
	default:
		s.jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

// Verification flow

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.WhatsAppNumber) < 10 || len(req.WhatsAppNumber) > 20 {
		s.jsonError(w, "whatsappNumber must be 10-20 characters", http.StatusBadRequest)
		return
	}

	code, err := generateNumericCode(verificationCodeLen)
	if err != nil {
		s.jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.store.PutCode(r.Context(), verifyKey(req.WhatsAppNumber), code, verificationCodeTTL); err != nil {
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	template := s.renderer.TemplateName(message.TypeOTP)
	if _, err := s.notifier.Send(r.Context(), template, []string{"System", code}); err != nil {
		s.logger.Error("failed to send verification code")
		s.jsonResponse(w, statusResponse{Success: false, Message: "failed to send verification code"}, http.StatusBadGateway)
		return
	}

	s.logger.Info("verification code sent")
	s.jsonResponse(w, statusResponse{Success: true, Message: "verification code sent"}, http.StatusOK)
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.OTP) != verificationCodeLen {
		s.jsonError(w, "otp must be 6 digits", http.StatusBadRequest)
		return
	}

	stored, found, err := s.store.GetCode(r.Context(), verifyKey(req.WhatsAppNumber))
	if err != nil {
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if !found {
		s.jsonResponse(w, statusResponse{Success: false, Message: "code expired or not found"}, http.StatusOK)
		return
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(req.OTP)) != 1 {
		s.logger.Warn("invalid verification code attempt")
		s.jsonResponse(w, statusResponse{Success: false, Message: "invalid code"}, http.StatusOK)
		return
	}

	token, err := generateToken()
	if err != nil {
		s.jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.store.PutCode(r.Context(), tokenKey(token), req.WhatsAppNumber, registrationTokenTTL); err != nil {
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	_ = s.store.DeleteCode(r.Context(), verifyKey(req.WhatsAppNumber))

	s.jsonResponse(w, statusResponse{Success: true, Message: "code verified", Token: token}, http.StatusOK)
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Name) > 100 {
		s.jsonError(w, "name must be 1-100 characters", http.StatusBadRequest)
		return
	}
	if len(req.VerificationToken) < 32 {
		s.jsonError(w, "verificationToken is required", http.StatusBadRequest)
		return
	}

	number, found, err := s.store.GetCode(r.Context(), tokenKey(req.VerificationToken))
	if err != nil {
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if !found || number != req.WhatsAppNumber {
		s.jsonResponse(w, statusResponse{Success: false, Message: "invalid or expired registration token"}, http.StatusOK)
		return
	}

	_ = s.store.DeleteCode(r.Context(), tokenKey(req.VerificationToken))

	s.logger.Info("user registered")
	s.jsonResponse(w, statusResponse{Success: true, Message: "user registered successfully"}, http.StatusOK)
}

func verifyKey(number string) string { return "verify:" + number }
func tokenKey(token string) string   { return "token:" + token }

// generateNumericCode returns n uniformly random decimal digits. Bytes of
// 250 and above are rejected rather than folded, since 256 is not a
// multiple of 10 and plain modulo would skew toward low digits.
func generateNumericCode(n int) (string, error) {
	digits := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(digits) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			digits = append(digits, '0'+b%10)
			if len(digits) == n {
				break
			}
		}
	}
	return string(digits), nil
}

// generateToken returns a 32-character hex token.
func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Helper functions

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, msg string, status int) {
	s.jsonResponse(w, map[string]string{"error": msg}, status)
}
