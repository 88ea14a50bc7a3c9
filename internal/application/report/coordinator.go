package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// State is the outcome of the last settled request of a kind.
type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status describes one kind's coordinator slot.
type Status struct {
	Kind        Kind       `json:"kind"`
	State       State      `json:"state"`
	InFlight    bool       `json:"in_flight"`
	RequestID   string     `json:"request_id,omitempty"`
	Message     string     `json:"message,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLE
// ══════════════════════════════════════════════════════════════════════════════

// Handle tracks one request. It resolves exactly once.
type Handle struct {
	id   string
	kind Kind
	seq  uint64

	done     chan struct{}
	once     sync.Once
	artifact *Artifact
	err      error
}

func newHandle(kind Kind, seq uint64) *Handle {
	return &Handle{id: uuid.NewString(), kind: kind, seq: seq, done: make(chan struct{})}
}

func (h *Handle) ID() string            { return h.id }
func (h *Handle) Kind() Kind            { return h.kind }
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request settles or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-h.done:
		return h.artifact, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the request has resolved.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. Both values are nil until Done is closed.
func (h *Handle) Result() (*Artifact, error) {
	if !h.Settled() {
		return nil, nil
	}
	return h.artifact, h.err
}

func (h *Handle) resolve(a *Artifact, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.artifact, h.err = a, err
		close(h.done)
		resolved = true
	})
	return resolved
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

type slot struct {
	seq      uint64
	inflight *Handle
	cancel   context.CancelFunc
	started  time.Time

	status   Status
	artifact *Artifact
	// artifactID is the request that produced artifact.
	artifactID string
}

// Config tunes the coordinator.
type Config struct {
	// Timeout bounds every backend call.
	Timeout time.Duration
}

// Coordinator serializes report requests per kind.
type Coordinator struct {
	backend   Backend
	cfg       Config
	publisher shared.EventPublisher
	tracer    trace.Tracer
	log       *logger.Logger
	now       func() time.Time

	mu    sync.Mutex
	slots map[Kind]*slot
	wg    sync.WaitGroup
}

// NewCoordinator creates a coordinator. publisher and log may be nil.
func NewCoordinator(backend Backend, cfg Config, publisher shared.EventPublisher, log *logger.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}

	slots := make(map[Kind]*slot, len(Kinds))
	for _, k := range Kinds {
		slots[k] = &slot{status: Status{Kind: k, State: StateIdle}}
	}
	return &Coordinator{
		backend:   backend,
		cfg:       cfg,
		publisher: publisher,
		tracer:    otel.Tracer("github.com/edupredict/risk-monitor/report"),
		log:       log.With(logger.Component("report_coordinator")),
		now:       time.Now,
		slots:     slots,
	}
}

// Request starts generating kind in the background. It fails with
// ErrReportInFlight while an earlier request of the same kind is outstanding.
// The request outlives ctx's cancellation but keeps its values.
func (c *Coordinator) Request(ctx context.Context, kind Kind) (*Handle, error) {
	if !kind.IsValid() {
		return nil, shared.ErrInvalidReportKind.WithMessage("unknown report kind: " + string(kind))
	}

	c.mu.Lock()
	s := c.slots[kind]
	if s.inflight != nil {
		c.mu.Unlock()
		return nil, shared.ErrReportInFlight
	}

	s.seq++
	h := newHandle(kind, s.seq)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	s.inflight = h
	s.cancel = cancel
	s.started = c.now().UTC()
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info("report requested", logger.ReportKind(kind.String()), logger.String("request_id", h.id))

	go c.run(rctx, cancel, h)
	return h, nil
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, h *Handle) {
	defer c.wg.Done()
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "report.generate", trace.WithAttributes(
		attribute.String("report.kind", h.kind.String()),
		attribute.String("report.request_id", h.id),
	))
	defer span.End()

	start := c.now()
	art, err := c.backend.Generate(ctx, h.kind)
	if err != nil {
		err = c.translate(h, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	c.settle(h, art, err, c.now().Sub(start))
}

// translate maps backend errors to *Failure. Transport errors become the
// generic message.
func (c *Coordinator) translate(h *Handle, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	c.log.Warn("report backend unreachable",
		logger.ReportKind(h.kind.String()),
		logger.String("request_id", h.id),
		logger.Err(err),
	)
	return NewFailure(h.kind, 0, "", err)
}

func (c *Coordinator) settle(h *Handle, art *Artifact, err error, took time.Duration) {
	c.mu.Lock()
	s := c.slots[h.kind]
	if s.inflight != h || s.seq != h.seq {
		c.mu.Unlock()
		c.log.Debug("discarding superseded report response",
			logger.ReportKind(h.kind.String()),
			logger.String("request_id", h.id),
		)
		return
	}

	completed := c.now().UTC()
	started := s.started
	s.inflight = nil
	s.cancel = nil
	s.status = Status{
		Kind:        h.kind,
		RequestID:   h.id,
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	if err != nil {
		s.status.State = StateFailed
		s.status.Message = err.Error()
	} else {
		if art.Filename == "" {
			art.Filename = DefaultFilename(h.kind, completed)
		}
		if art.ContentType == "" {
			art.ContentType = "application/pdf"
		}
		art.Kind = h.kind
		if art.GeneratedAt.IsZero() {
			art.GeneratedAt = completed
		}
		s.status.State = StateSucceeded
		s.status.Filename = art.Filename
		s.artifact = art
		s.artifactID = h.id
	}
	h.resolve(art, err)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("report failed",
			logger.ReportKind(h.kind.String()),
			logger.String("request_id", h.id),
			logger.String("message", err.Error()),
			logger.Latency(took),
		)
	} else {
		c.log.Info("report generated",
			logger.ReportKind(h.kind.String()),
			logger.String("request_id", h.id),
			logger.String("filename", art.Filename),
			logger.Int("bytes", len(art.Data)),
			logger.Latency(took),
		)
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = c.publisher.Publish(shared.NewReportSettledEvent(h.id, h.kind.String(), err == nil, msg))
}

// Cancel abandons the outstanding request of kind. Its handle resolves with
// ErrReportCancelled and any later response is discarded. It returns false
// when nothing was in flight.
func (c *Coordinator) Cancel(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[kind]
	if !ok || s.inflight == nil {
		return false
	}

	h := s.inflight
	s.cancel()
	s.seq++
	s.inflight = nil
	s.cancel = nil

	completed := c.now().UTC()
	started := s.started
	s.status = Status{
		Kind:        kind,
		State:       StateCancelled,
		RequestID:   h.id,
		Message:     shared.ErrReportCancelled.Message,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	h.resolve(nil, shared.ErrReportCancelled)

	c.log.Info("report cancelled", logger.ReportKind(kind.String()), logger.String("request_id", h.id))
	return true
}

// InFlight reports whether a request of kind is outstanding.
func (c *Coordinator) InFlight(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[kind]
	return ok && s.inflight != nil
}

// Status returns the last settled result of kind, flagged with whether a
// newer request is running.
func (c *Coordinator) Status(kind Kind) (Status, error) {
	if !kind.IsValid() {
		return Status{}, shared.ErrInvalidReportKind.WithMessage("unknown report kind: " + string(kind))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[kind]
	st := s.status
	if s.inflight != nil {
		st.InFlight = true
		if st.State == StateIdle {
			st.State = StatePending
		}
	}
	return st, nil
}

// Artifact returns the latest successful artifact of kind. A non-empty
// requestID must match the request that produced it.
func (c *Coordinator) Artifact(kind Kind, requestID string) (*Artifact, error) {
	if !kind.IsValid() {
		return nil, shared.ErrInvalidReportKind.WithMessage("unknown report kind: " + string(kind))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[kind]
	if s.artifact == nil || (requestID != "" && requestID != s.artifactID) {
		return nil, shared.ErrReportNotReady
	}
	return s.artifact, nil
}

// Close cancels every outstanding request and waits for the workers to exit.
func (c *Coordinator) Close(ctx context.Context) error {
	for _, k := range Kinds {
		c.Cancel(k)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
