// Package pipeline sequences the secure ingestion pass for one envelope:
// replay check, signature verification and decryption, classification,
// deduplication, template rendering, and handoff to the notifier.
//
// Everything downstream of the crypto gate trusts its output; nothing
// downstream of the classifier sees the plaintext except through the
// renderer's masking step. Decryption and classification are read-only and
// idempotent, so concurrent arrivals of the same fingerprint may both reach
// the store call; the store guarantees exactly one of them observes
// first-seen.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaymesh/smsgate/internal/notifier"
	"github.com/relaymesh/smsgate/internal/storage"
	"github.com/relaymesh/smsgate/pkg/classify"
	"github.com/relaymesh/smsgate/pkg/message"
	"github.com/relaymesh/smsgate/pkg/replay"
	"github.com/relaymesh/smsgate/pkg/security"
	"github.com/relaymesh/smsgate/pkg/templates"
)

// Error taxonomy surfaced to the transport layer. Authentication failures
// come through as security.ErrAuthenticationFailed, storage failures as
// storage.ErrUnavailable, delivery failures as notifier.ErrForwardFailed.
var (
	// ErrReplayRejected indicates a stale or future-dated timestamp.
	ErrReplayRejected = errors.New("request timestamp is invalid")

	// ErrInternal is returned for any unanticipated failure caught at the
	// pipeline boundary. The underlying cause is never attached.
	ErrInternal = errors.New("internal error")
)

// Result reports the outcome of a successful pipeline pass.
type Result struct {
	Type           message.Type
	Duplicate      bool
	NotificationID string
}

// Pipeline wires the five components into a single pass. All dependencies
// are injected at construction and read-only afterwards.
type Pipeline struct {
	gate       *security.Gate
	guard      *replay.Guard
	classifier *classify.Classifier
	store      storage.DedupStore
	renderer   *templates.Renderer
	notifier   notifier.Notifier
	logger     *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Pipeline.
func New(
	gate *security.Gate,
	guard *replay.Guard,
	classifier *classify.Classifier,
	store storage.DedupStore,
	renderer *templates.Renderer,
	n notifier.Notifier,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		gate:       gate,
		guard:      guard,
		classifier: classifier,
		store:      store,
		renderer:   renderer,
		notifier:   n,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs one envelope through the full pass. A duplicate is a
// successful idempotent no-op, reported via Result.Duplicate rather than an
// error. Panics are caught at this boundary and reported as ErrInternal;
// only the recovered value's type name is logged.
func (p *Pipeline) Process(ctx context.Context, env *message.EncryptedEnvelope) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline failure", "error_type", fmt.Sprintf("%T", r))
			res, err = nil, ErrInternal
		}
	}()

	if !p.guard.IsFresh(env.Timestamp, env.DeclaredType, p.now()) {
		p.logger.Warn("request rejected: stale timestamp", "sender", env.Sender)
		return nil, ErrReplayRejected
	}

	plaintext, err := p.gate.VerifyAndDecrypt(env)
	if err != nil {
		p.logger.Warn("request rejected: authentication failed", "sender", env.Sender)
		return nil, err
	}

	msgType := env.DeclaredType
	if msgType == message.TypeUnknown {
		classification := p.classifier.Classify(plaintext, env.Sender)
		msgType = classification.Type
		p.logger.Info("message classified",
			"type", msgType,
			"confidence", fmt.Sprintf("%.2f", classification.Confidence),
		)
	}

	fingerprint := env.PrecomputedHash
	if !env.HasValidHash() {
		sum := sha256.Sum256([]byte(plaintext))
		fingerprint = hex.EncodeToString(sum[:])
	}

	firstSeen, err := p.store.TryRegister(ctx, fingerprint, env.Sender, msgType)
	if err != nil {
		return nil, fmt.Errorf("registering fingerprint: %w", err)
	}
	if !firstSeen {
		p.logger.Info("duplicate message skipped", "type", msgType, "sender", env.Sender)
		return &Result{Type: msgType, Duplicate: true}, nil
	}

	template := p.renderer.TemplateName(msgType)
	params := p.renderer.Render(msgType, env.Sender, plaintext)

	id, err := p.notifier.Send(ctx, template, params)
	if err != nil {
		return nil, fmt.Errorf("forwarding %s message: %w", msgType, err)
	}

	p.logger.Info("message forwarded", "type", msgType, "sender", env.Sender)
	return &Result{Type: msgType, NotificationID: id}, nil
}
