package council

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/logging"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

// DefaultChairmanModel synthesizes when neither the request nor the config names a model.
const DefaultChairmanModel = "phi3.5:mini"

// QueryRequest is one deliberation request.
type QueryRequest struct {
	Query         string
	Agents        []core.AgentSpec
	Protocol      core.ReviewProtocol
	ChairmanModel string
}

// Validate checks the query and the council size.
func (r QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return core.ErrValidation(core.CodeEmptyQuery, "query cannot be empty")
	}
	if utf8.RuneCountInString(r.Query) > core.MaxQueryLength {
		return core.ErrValidation(core.CodeQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", core.MaxQueryLength))
	}
	if len(r.Agents) < core.MinAgents {
		return core.ErrValidation(core.CodeNoAgents, "at least one agent is required")
	}
	if len(r.Agents) > core.MaxAgents {
		return core.ErrValidation(core.CodeTooManyAgents,
			fmt.Sprintf("at most %d agents are allowed, got %d", core.MaxAgents, len(r.Agents)))
	}
	for i, a := range r.Agents {
		if strings.TrimSpace(a.Model) == "" {
			return core.ErrValidation(core.CodeEmptyModel, fmt.Sprintf("agent %d has no model", i+1))
		}
	}
	if r.Protocol != "" && !r.Protocol.IsValid() {
		return core.ErrValidation(core.CodeInvalidRequest,
			fmt.Sprintf("unknown review protocol %q", r.Protocol))
	}
	return nil
}

// Orchestrator drives sessions through opinions, review and synthesis.
// Stages of one session run sequentially; sessions are independent.
type Orchestrator struct {
	store    core.SessionStore
	stages   *Stages
	metrics  *Aggregator
	bus      events.Publisher
	logger   *logging.Logger
	tracer   trace.Tracer
	protocol core.ReviewProtocol
	chairman string
	baseCtx  context.Context
	now      func() time.Time
	wg       sync.WaitGroup
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithEventPublisher sets where progress events go.
func WithEventPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.bus = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithDefaults sets the protocol and chairman used when a request omits them.
func WithDefaults(protocol core.ReviewProtocol, chairman string) Option {
	return func(o *Orchestrator) {
		if protocol != "" {
			o.protocol = protocol
		}
		if chairman != "" {
			o.chairman = chairman
		}
	}
}

// WithBaseContext sets the context background sessions run under.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		o.baseCtx = ctx
	}
}

// WithClock overrides the clock used for stage timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.metrics = &Aggregator{now: now}
	}
}

// New creates an orchestrator.
func New(store core.SessionStore, stages *Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		stages:   stages,
		metrics:  NewAggregator(),
		bus:      events.Discard,
		logger:   logging.NewNop(),
		tracer:   telemetry.Tracer("llm-council/council"),
		protocol: core.ProtocolPairwise,
		chairman: DefaultChairmanModel,
		baseCtx:  context.Background(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start creates the session and runs it in the background.
// The returned snapshot is still pending; follow progress through the store or the event bus.
func (o *Orchestrator) Start(ctx context.Context, req QueryRequest) (*core.Session, error) {
	sess, err := o.create(ctx, req)
	if err != nil {
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.Execute(o.baseCtx, sess.ID)
	}()
	return sess, nil
}

// Run creates the session, runs it to a terminal stage and returns the final snapshot.
// A failed deliberation is reported through the snapshot's stage and error, not the
// returned error. Canceling ctx does not abort the session.
func (o *Orchestrator) Run(ctx context.Context, req QueryRequest) (*core.Session, error) {
	sess, err := o.create(ctx, req)
	if err != nil {
		return nil, err
	}
	_ = o.Execute(context.WithoutCancel(ctx), sess.ID)
	return o.store.Get(ctx, sess.ID)
}

// Wait blocks until every background session has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) create(ctx context.Context, req QueryRequest) (*core.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	protocol := req.Protocol
	if protocol == "" {
		protocol = o.protocol
	}
	chairman := req.ChairmanModel
	if chairman == "" {
		chairman = o.chairman
	}

	sess, err := o.store.Create(ctx, req.Query, core.NewAgents(req.Agents), core.CreateSessionOptions{
		Protocol:         protocol,
		SynthesizerModel: chairman,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// stageFunc runs one stage on a snapshot and returns the mutation that stores its output.
type stageFunc func(ctx context.Context, snap *core.Session) (func(*core.Session) error, error)

// Execute runs an existing session to a terminal stage. Any stage error or panic
// moves the session to the error stage and is returned.
func (o *Orchestrator) Execute(ctx context.Context, id core.SessionID) (err error) {
	ctx, span := o.tracer.Start(ctx, "council.session",
		trace.WithAttributes(attribute.String("council.session_id", string(id))))
	defer span.End()

	log := o.logger.WithSession(string(id))
	current := core.StagePending

	snap, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.Stage != core.StagePending {
		return core.ErrState(core.CodeInvalidTransition,
			fmt.Sprintf("session %s already started (stage %s)", id, snap.Stage))
	}

	defer func() {
		if r := recover(); r != nil {
			err = core.ErrExecution(core.CodeStageFailed, fmt.Sprintf("panic in %s stage: %v", current, r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.fail(ctx, id, current, err)
		}
	}()

	span.SetAttributes(
		attribute.Int("council.agents", len(snap.Agents)),
		attribute.String("council.protocol", string(snap.Protocol)),
	)
	o.bus.Publish(events.NewSessionStartedEvent(string(id), snap.Query, len(snap.Agents)))
	log.Info("session started", "agents", len(snap.Agents), "protocol", snap.Protocol)

	steps := []struct {
		stage core.Stage
		run   stageFunc
	}{
		{core.StageOpinions, o.opinionStage},
		{core.StageReview, o.reviewStage},
		{core.StageSynthesis, o.synthesisStage},
	}
	for _, step := range steps {
		current = step.stage
		if err := o.runStage(ctx, id, step.stage, step.run); err != nil {
			return err
		}
	}

	final, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	var sources []string
	if final.FinalAnswer != nil {
		sources = final.FinalAnswer.SourcesCited
	}
	duration := time.Duration(final.Metrics.Latency.EndToEndMS) * time.Millisecond
	o.bus.Publish(events.NewSessionCompletedEvent(string(id), duration, final.Metrics.Usage.Total.TotalTokens, sources))
	log.Info("session complete",
		"total_tokens", final.Metrics.Usage.Total.TotalTokens,
		"duration_ms", final.Metrics.Latency.EndToEndMS,
		"sources", sources)
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, id core.SessionID, stage core.Stage, run stageFunc) error {
	ctx, span := o.tracer.Start(ctx, "council.stage."+string(stage))
	defer span.End()
	log := o.logger.WithSession(string(id)).WithStage(string(stage))

	snap, err := o.store.Update(ctx, id, func(s *core.Session) error {
		if err := s.Transition(stage, o.now()); err != nil {
			return err
		}
		o.metrics.Touch(s)
		return nil
	})
	if err != nil {
		return err
	}
	o.bus.Publish(events.NewStageStartedEvent(string(id), string(stage)))
	log.Info("stage started", "agents", len(snap.Agents))

	start := time.Now()
	apply, err := run(ctx, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s stage: %w", stage, err)
	}

	snap, err = o.store.Update(ctx, id, func(s *core.Session) error {
		if err := apply(s); err != nil {
			return err
		}
		s.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	items, tokens := stageCounts(snap, stage)
	span.SetAttributes(attribute.Int("council.items", items), attribute.Int("council.tokens", tokens))
	o.bus.Publish(events.NewStageCompletedEvent(string(id), string(stage), items, tokens, elapsed))
	log.Info("stage completed", "items", items, "tokens", tokens, "duration", elapsed)
	return nil
}

func (o *Orchestrator) opinionStage(ctx context.Context, snap *core.Session) (func(*core.Session) error, error) {
	opinions, err := o.stages.CollectOpinions(ctx, snap)
	if err != nil {
		return nil, err
	}
	return func(s *core.Session) error {
		s.Opinions = opinions
		o.metrics.ApplyOpinions(s)
		return nil
	}, nil
}

func (o *Orchestrator) reviewStage(ctx context.Context, snap *core.Session) (func(*core.Session) error, error) {
	reviews, err := o.stages.Review(ctx, snap)
	if err != nil {
		return nil, err
	}
	return func(s *core.Session) error {
		s.Reviews = reviews
		o.metrics.ApplyReviews(s)
		return nil
	}, nil
}

func (o *Orchestrator) synthesisStage(ctx context.Context, snap *core.Session) (func(*core.Session) error, error) {
	out, err := o.stages.Synthesize(ctx, snap)
	if err != nil {
		return nil, err
	}
	return func(s *core.Session) error {
		o.metrics.ApplySynthesis(s, out)
		return s.Complete(out.Answer, o.now())
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, id core.SessionID, stage core.Stage, cause error) {
	ctx = context.WithoutCancel(ctx)
	_, err := o.store.Update(ctx, id, func(s *core.Session) error {
		s.Fail(cause.Error(), o.now())
		o.metrics.Touch(s)
		return nil
	})
	if err != nil {
		o.logger.WithSession(string(id)).Error("recording session failure", "error", err)
	}
	o.bus.Publish(events.NewSessionFailedEvent(string(id), string(stage), cause))
	o.logger.WithSession(string(id)).WithStage(string(stage)).Error("session failed", "error", cause)
}

func stageCounts(s *core.Session, stage core.Stage) (items, tokens int) {
	switch stage {
	case core.StageOpinions:
		items = len(s.Opinions)
		if s.Metrics.Usage.Opinions != nil {
			tokens = s.Metrics.Usage.Opinions.Totals.TotalTokens
		}
	case core.StageReview:
		items = len(s.Reviews)
		if s.Metrics.Usage.Review != nil {
			tokens = s.Metrics.Usage.Review.Totals.TotalTokens
		}
	case core.StageSynthesis:
		if s.FinalAnswer != nil {
			items = 1
		}
		if s.Metrics.Usage.Synthesis != nil {
			tokens = s.Metrics.Usage.Synthesis.Totals.TotalTokens
		}
	}
	return items, tokens
}
