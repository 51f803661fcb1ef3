// ABOUTME: Per-event dispatch from decoded client envelopes to feature handlers
// ABOUTME: Validates before handling, runs processing off the read loop, and recovers handler panics

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/dedupe"
	"github.com/2389/vision-gateway/internal/metrics"
	"github.com/2389/vision-gateway/internal/moderation"
	"github.com/2389/vision-gateway/internal/processing"
	"github.com/2389/vision-gateway/internal/protocol"
	"github.com/2389/vision-gateway/internal/session"
	"github.com/2389/vision-gateway/internal/store"
)

const (
	msgInternal       = "internal error"
	msgProcessing     = "processing failed"
	msgTimeout        = "processing timed out"
	msgBusy           = "server is busy, try again"
	msgMalformed      = "malformed payload"
	usageWriteTimeout = 5 * time.Second
)

// Options wires a Dispatcher to its collaborators. Router and Adapter are
// required; everything else has a usable default.
type Options struct {
	Router         *channel.Router
	Adapter        processing.Adapter
	Usage          store.UsageStore
	Moderator      *moderation.Moderator
	Dedupe         *dedupe.Window
	Pool           *TaskPool
	AnalyticsTiers []string
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Dispatcher handles inbound events for every session. It holds no
// per-connection state and is safe for concurrent use.
type Dispatcher struct {
	router         *channel.Router
	adapter        processing.Adapter
	usage          store.UsageStore
	moderator      *moderation.Moderator
	dedupe         *dedupe.Window
	pool           *TaskPool
	analyticsTiers []string
	validate       *validator.Validate
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pool == nil {
		opts.Pool = NewTaskPool(0)
	}
	if opts.Dedupe == nil {
		opts.Dedupe = dedupe.NewWindow(0, 0)
	}
	if len(opts.AnalyticsTiers) == 0 {
		opts.AnalyticsTiers = []string{string(store.TierEnterprise)}
	}
	return &Dispatcher{
		router:         opts.Router,
		adapter:        opts.Adapter,
		usage:          opts.Usage,
		moderator:      opts.Moderator,
		dedupe:         opts.Dedupe,
		pool:           opts.Pool,
		analyticsTiers: opts.AnalyticsTiers,
		validate:       newValidator(),
		logger:         opts.Logger.With("component", "dispatch"),
		metrics:        opts.Metrics,
		now:            time.Now,
	}
}

// Close stops accepting processing work and waits for in-flight tasks.
func (d *Dispatcher) Close() {
	d.pool.Close()
}

// Handle processes one inbound event from s. It returns once synchronous
// handling is done; processing calls continue on the task pool.
func (d *Dispatcher) Handle(s *session.Session, env protocol.Envelope) {
	resultKind := protocol.ResultKind(env.Event)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in event handler",
				"session_id", s.ID(),
				"user_id", s.Identity().UserID,
				"event", env.Event,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			d.metrics.Event(string(env.Event), "panic")
			d.fail(s, resultKind, msgInternal)
		}
	}()

	req, err := protocol.Decode(env)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			d.metrics.Event("unknown", "rejected")
			d.fail(s, protocol.KindSystemError, fmt.Sprintf("unknown event %q", env.Event))
			return
		}
		d.metrics.Event(string(env.Event), "invalid")
		d.fail(s, resultKind, msgMalformed)
		return
	}

	if err := d.validate.Struct(req); err != nil {
		d.metrics.Event(string(env.Event), "invalid")
		d.logger.Debug("validation failed", "session_id", s.ID(), "event", env.Event, "error", err)
		d.fail(s, resultKind, validationMessage(err))
		return
	}

	d.route(s, req)
}

func (d *Dispatcher) route(s *session.Session, req protocol.Request) {
	switch r := req.(type) {
	case protocol.JoinChannel:
		d.handleJoin(s, r)
	case protocol.TranslationRequest:
		d.handleTranslation(s, r)
	case protocol.SpeechStart:
		d.handleSpeechStart(s, r)
	case protocol.SpeechAudio:
		d.handleSpeechAudio(s, r)
	case protocol.OCRRequest:
		d.handleOCR(s, r)
	case protocol.SceneRequest:
		d.handleScene(s, r)
	case protocol.ConversationJoin:
		d.handleConversationJoin(s, r)
	case protocol.ConversationLeave:
		d.handleConversationLeave(s, r)
	case protocol.ConversationMessage:
		d.handleConversationMessage(s, r)
	case protocol.Obstacle:
		d.handleObstacle(s, r)
	case protocol.NavigationRequest:
		d.handleNavigation(s, r)
	default:
		// Decode and route must cover the same kinds.
		panic(fmt.Sprintf("no handler for %T", req))
	}
}

// reply delivers a result envelope to s. Delivery to a closed session is a no-op.
func (d *Dispatcher) reply(s *session.Session, kind protocol.Kind, res protocol.Result) {
	env, err := protocol.NewEnvelope(kind, res)
	if err != nil {
		d.logger.Error("encoding result failed", "session_id", s.ID(), "event", kind, "error", err)
		env = protocol.MustEnvelope(kind, protocol.Failure(msgInternal))
	}
	s.Deliver(env)
}

func (d *Dispatcher) ok(s *session.Session, kind protocol.Kind, data any) {
	d.reply(s, kind, protocol.Success(data))
}

func (d *Dispatcher) fail(s *session.Session, kind protocol.Kind, msg string) {
	d.reply(s, kind, protocol.Failure(msg))
}

// process schedules an adapter call for s and delivers its result on
// resultKind. The call's context ends when the session closes; a result for
// a session that is gone is discarded.
func process[T any](d *Dispatcher, s *session.Session, feature processing.Feature, resultKind protocol.Kind, call func(context.Context) (T, error)) {
	identity := s.Identity()
	task := func() {
		start := d.now()
		res, err := call(s.Context())
		latency := d.now().Sub(start)

		if !s.Alive() {
			d.logger.Debug("discarding result for closed session",
				"session_id", s.ID(), "feature", feature, "error", err)
			return
		}
		d.recordUsage(identity.UserID, feature, err == nil, latency)

		if err != nil {
			d.logger.Warn("processing failed",
				"session_id", s.ID(),
				"user_id", identity.UserID,
				"email", identity.Email,
				"feature", feature,
				"outcome", processing.Outcome(err),
				"latency", latency,
				"error", err,
			)
			d.metrics.Event(string(resultKind), processing.Outcome(err))
			msg := msgProcessing
			if errors.Is(err, processing.ErrTimeout) {
				msg = msgTimeout
			}
			d.fail(s, resultKind, msg)
			return
		}
		d.metrics.Event(string(resultKind), "ok")
		d.ok(s, resultKind, res)
	}
	onPanic := func(r any) {
		d.logger.Error("panic in processing task",
			"session_id", s.ID(),
			"user_id", identity.UserID,
			"feature", feature,
			"panic", r,
			"stack", string(debug.Stack()),
		)
		d.fail(s, resultKind, msgInternal)
	}

	if err := d.pool.Go(task, onPanic); err != nil {
		d.logger.Warn("processing rejected", "session_id", s.ID(), "feature", feature, "error", err)
		d.metrics.Event(string(resultKind), "busy")
		d.fail(s, resultKind, msgBusy)
	}
}

// usageEvent is the data of an analytics:usage broadcast.
type usageEvent struct {
	UserID    string    `json:"userId"`
	Feature   string    `json:"feature"`
	Success   bool      `json:"success"`
	LatencyMS int64     `json:"latencyMs"`
	Timestamp time.Time `json:"timestamp"`
}

// recordUsage persists one processed request and publishes it to the
// analytics channel. Store failures are logged, never surfaced to the user.
func (d *Dispatcher) recordUsage(userID string, feature processing.Feature, success bool, latency time.Duration) {
	now := d.now().UTC()
	ev := usageEvent{
		UserID:    userID,
		Feature:   string(feature),
		Success:   success,
		LatencyMS: latency.Milliseconds(),
		Timestamp: now,
	}

	if d.usage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), usageWriteTimeout)
		err := d.usage.SaveUsage(ctx, &store.FeatureUsage{
			ID:        uuid.NewString(),
			UserID:    userID,
			Feature:   ev.Feature,
			Success:   success,
			LatencyMS: ev.LatencyMS,
			CreatedAt: now,
		})
		cancel()
		if err != nil {
			d.logger.Warn("saving usage failed", "user_id", userID, "feature", feature, "error", err)
		}
	}

	env, err := protocol.NewEnvelope(protocol.KindAnalyticsUsage, ev)
	if err != nil {
		return
	}
	d.router.Broadcast(channel.Analytics, env, "")
}

func (d *Dispatcher) analyticsAllowed(tier string) bool {
	return slices.Contains(d.analyticsTiers, tier)
}
