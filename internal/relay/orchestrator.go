// Package relay ties the platform adapters, identity lookups, and the AI
// dispatcher together. Every inbound update walks an explicit state machine
// with an enumerated terminal state for each exit path.
package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"botrelay/internal/domain"
	"botrelay/internal/metrics"
)

// State is the position of one update in the relay state machine.
type State string

const (
	StateReceived           State = "received"
	StateDecoded            State = "decoded"
	StateIdentityResolved   State = "identity_resolved"
	StateCredentialResolved State = "credential_resolved"
	StateDispatching        State = "dispatching"
	StateStreaming          State = "streaming"

	// Terminal states. The webhook acknowledgement is independent of all
	// three: the platform always sees success.
	StateCompleted State = "completed"
	StateUnmatched State = "completed_unmatched"
	StateFailed    State = "completed_failed"
)

const (
	defaultMaxConcurrent  = 16
	defaultFlushThreshold = 1000
	defaultFallback       = "متأسفم، الان نمی‌توانم پاسخ بدهم. لطفاً کمی بعد دوباره تلاش کنید."

	auditTextLimit = 500
)

// Orchestrator accepts decoded-or-raw updates, enforces per-chat ordering,
// and drives each one through the relay pipeline. Queued work runs under
// the lifecycle context, not the webhook request's: the ack returns long
// before the AI round trip, and cancelling the lifecycle context is how
// shutdown cuts in-flight streams loose.
type Orchestrator struct {
	ctx        context.Context
	adapters   map[domain.Platform]domain.PlatformAdapter
	resolver   domain.IdentityResolver
	creds      domain.CredentialStore
	dispatcher domain.Dispatcher
	auditor    domain.Auditor
	logger     *slog.Logger

	seq            *sequencer
	sem            chan struct{}
	flushThreshold int
	fallback       string

	wg sync.WaitGroup
}

type Config struct {
	// BaseContext bounds the lifetime of all queued updates. Defaults to
	// context.Background (updates run to completion).
	BaseContext    context.Context
	Adapters       []domain.PlatformAdapter
	Resolver       domain.IdentityResolver
	Credentials    domain.CredentialStore
	Dispatcher     domain.Dispatcher
	Auditor        domain.Auditor
	Logger         *slog.Logger
	MaxConcurrent  int
	FlushThreshold int
	Fallback       string
}

func New(cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = defaultFlushThreshold
	}
	if cfg.Fallback == "" {
		cfg.Fallback = defaultFallback
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}

	adapters := make(map[domain.Platform]domain.PlatformAdapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters[a.Name()] = a
	}

	return &Orchestrator{
		ctx:            cfg.BaseContext,
		adapters:       adapters,
		resolver:       cfg.Resolver,
		creds:          cfg.Credentials,
		dispatcher:     cfg.Dispatcher,
		auditor:        cfg.Auditor,
		logger:         cfg.Logger,
		seq:            newSequencer(),
		sem:            make(chan struct{}, cfg.MaxConcurrent),
		flushThreshold: cfg.FlushThreshold,
		fallback:       cfg.Fallback,
	}
}

// Accept takes one raw webhook update and queues it for processing. It
// returns as soon as the update has a turn in its chat's queue; the caller
// acknowledges the platform immediately, independent of the outcome. ctx
// covers only the synchronous part; queued work outlives the webhook call
// and runs under the orchestrator's lifecycle context.
func (o *Orchestrator) Accept(ctx context.Context, platform domain.Platform, schoolID string, raw []byte) {
	metrics.UpdatesTotal.Inc()

	adapter, ok := o.adapters[platform]
	if !ok {
		o.logger.Warn("update for unregistered platform dropped", "platform", platform)
		metrics.FailedTotal.Inc()
		return
	}

	msg, err := adapter.Decode(raw)
	if err != nil {
		o.failDecode(ctx, platform, raw, err)
		return
	}
	msg.TenantHint = schoolID
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	turn, done := o.seq.enqueue(string(platform) + ":" + msg.ExternalChatID)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer done()

		if turn != nil {
			select {
			case <-turn:
			case <-o.ctx.Done():
				return
			}
		}

		select {
		case o.sem <- struct{}{}:
		case <-o.ctx.Done():
			return
		}
		defer func() { <-o.sem }()

		metrics.InflightUpdates.Inc()
		defer metrics.InflightUpdates.Dec()

		start := time.Now()
		state := o.relay(o.ctx, adapter, msg)
		metrics.UpdateDuration.Observe(time.Since(start).Seconds())

		switch state {
		case StateCompleted:
			metrics.CompletedTotal.Inc()
		case StateUnmatched:
			metrics.UnmatchedTotal.Inc()
		default:
			metrics.FailedTotal.Inc()
		}
	}()
}

// Wait blocks until all accepted updates have finished processing.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) failDecode(ctx context.Context, platform domain.Platform, raw []byte, err error) {
	reason := domain.ReasonMalformedUpdate
	if err == domain.ErrEmptyUpdate {
		reason = domain.ReasonEmptyUpdate
	}
	o.logger.Warn("update dropped at decode", "platform", platform, "reason", reason)
	o.auditor.Record(ctx, domain.InteractionLogEntry{
		Platform: platform,
		RawText:  truncate(string(raw), auditTextLimit),
		Reason:   reason,
	})
	metrics.FailedTotal.Inc()
}

// relay walks one decoded update through the state machine and returns the
// terminal state.
func (o *Orchestrator) relay(ctx context.Context, adapter domain.PlatformAdapter, msg domain.InboundMessage) State {
	log := o.logger.With(
		"platform", msg.Platform,
		"chat_id", msg.ExternalChatID,
		"school_id", msg.TenantHint,
	)
	log.Debug("relay state", "state", StateDecoded)

	binding, err := o.resolver.Resolve(ctx, msg.Platform, msg.ExternalChatID)
	if err != nil {
		// Infra fault on lookup. The sender stays silent either way, so it
		// collapses into the unmatched path; the log entry keeps the trace.
		log.Error("binding lookup failed", "err", err)
	}
	if binding == nil || binding.SchoolID != msg.TenantHint {
		if binding != nil {
			log.Warn("binding school does not match webhook tenant",
				"bound_school", binding.SchoolID,
			)
		}
		o.audit(ctx, msg, domain.ReasonUnmatchedUser)
		return StateUnmatched
	}
	log.Debug("relay state", "state", StateIdentityResolved, "user_id", binding.UserID)

	token, err := o.creds.GetToken(ctx, binding.SchoolID, msg.Platform)
	if err != nil {
		log.Error("credential lookup failed", "err", err)
	}
	if token == "" {
		o.audit(ctx, msg, domain.ReasonMissingBotToken)
		return StateUnmatched
	}
	log.Debug("relay state", "state", StateCredentialResolved)

	// Best-effort typing indicator; a failure here never matters.
	if err := adapter.SendTyping(ctx, token, msg.ExternalChatID); err != nil {
		log.Debug("typing indicator failed", "err", err)
	}

	query := domain.AIQuery{
		UserID:   binding.UserID,
		SchoolID: binding.SchoolID,
		Role:     binding.Role,
		Text:     msg.RawText,
		Model:    domain.ResolveModelPreference(binding.ModelPref),
	}
	log.Debug("relay state", "state", StateDispatching, "model", query.Model)

	return o.stream(ctx, log, adapter, token, msg, o.dispatcher.Query(ctx, query))
}

// stream relays answer chunks to the chat, coalescing small fragments into
// platform messages. On a stream error the user gets exactly one short
// fallback message; partial output already sent stands.
func (o *Orchestrator) stream(ctx context.Context, log *slog.Logger, adapter domain.PlatformAdapter, token string, msg domain.InboundMessage, stream <-chan domain.StreamChunk) State {
	log.Debug("relay state", "state", StateStreaming)

	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		if err := adapter.SendText(ctx, token, msg.ExternalChatID, buf.String()); err != nil {
			metrics.SendErrorsTotal.Inc()
			log.Warn("relay send failed", "err", err)
		}
		buf.Reset()
	}

	for chunk := range stream {
		switch chunk.Type {
		case domain.ChunkText:
			buf.WriteString(chunk.Content)
			if buf.Len() >= o.flushThreshold {
				flush()
			}

		case domain.ChunkDone:
			flush()
			log.Info("update relayed", "state", StateCompleted)
			return StateCompleted

		case domain.ChunkError:
			metrics.AIErrorsTotal.Inc()
			log.Warn("ai stream failed", "err", chunk.Err)
			flush()
			if err := adapter.SendText(ctx, token, msg.ExternalChatID, o.fallback); err != nil {
				metrics.SendErrorsTotal.Inc()
				log.Warn("fallback send failed", "err", err)
			}
			o.audit(ctx, msg, domain.ReasonAIFailure)
			return StateFailed
		}
	}

	// Stream closed without a terminal marker: shutdown cancellation.
	// Whatever was already sent is the final state.
	flush()
	log.Info("update relayed", "state", StateCompleted, "note", "stream closed early")
	return StateCompleted
}

func (o *Orchestrator) audit(ctx context.Context, msg domain.InboundMessage, reason string) {
	o.auditor.Record(ctx, domain.InteractionLogEntry{
		Platform:       msg.Platform,
		ExternalChatID: msg.ExternalChatID,
		RawText:        truncate(msg.RawText, auditTextLimit),
		Reason:         reason,
		Timestamp:      msg.ReceivedAt,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
