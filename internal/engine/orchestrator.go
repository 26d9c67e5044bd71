package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/rules"
)

// Orchestrator defaults.
const (
	DefaultMaxConcurrent = 5
	DefaultQueueLimit    = 100
	DefaultWorkers       = 4
	DefaultTimeout       = 30 * time.Second
)

// Resolver resolves the configuration of an analysis.
// *config.Store implements it.
type Resolver interface {
	Resolve(ctx context.Context, ref config.Ref) (ir.OrganizationConfig, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref config.Ref) (ir.OrganizationConfig, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, ref config.Ref) (ir.OrganizationConfig, error) {
	return f(ctx, ref)
}

// Evaluator evaluates the rules of one pipeline stage.
// *rules.Engine implements it.
type Evaluator interface {
	EvaluateCategory(ctx context.Context, stage ir.Category, ruleSet []ir.Rule, text string, cls ir.Classification) (rules.Evaluation, error)
}

// Request is one analysis submission.
type Request struct {
	Text           string
	Classification ir.Classification
	Config         config.Ref

	// Overrides are keyed by parameter id and win over the resolved config.
	Overrides map[string]Override

	// Timeout bounds processing time. Zero means the orchestrator default.
	Timeout time.Duration
}

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	Submitted           int64 `json:"submitted"`
	Completed           int64 `json:"completed"`
	Failed              int64 `json:"failed"`
	Cancelled           int64 `json:"cancelled"`
	Rejected            int64 `json:"rejected"`
	CacheHits           int64 `json:"cacheHits"`
	CacheMisses         int64 `json:"cacheMisses"`
	Fallbacks           int64 `json:"fallbacks"`
	Running             int   `json:"running"`
	Pending             int   `json:"pending"`
	ContentCacheEntries int   `json:"contentCacheEntries"`
}

type counters struct {
	submitted   atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	cancelled   atomic.Int64
	rejected    atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	fallbacks   atomic.Int64
}

// analysis is the orchestrator-owned state of one request.
// Every field except id, seq, req and done is guarded by Orchestrator.mu.
type analysis struct {
	id   string
	seq  int64
	req  Request
	done chan struct{}

	status     ir.AnalysisStatus
	cursor     *stageCursor
	processing time.Time
	cancel     context.CancelCauseFunc
	result     *ir.AnalysisResult
	err        error

	// released is set once a Processing analysis gives its slot back.
	released bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrent bounds the number of analyses in Processing.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithQueueLimit bounds the pending FIFO. Zero rejects every submission
// that cannot start immediately.
func WithQueueLimit(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.queueLimit = n
		}
	}
}

// WithWorkers bounds the category workers of a single analysis.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSequential evaluates categories one at a time.
func WithSequential() Option {
	return func(o *Orchestrator) {
		o.workers = 1
	}
}

// WithDefaultTimeout sets the timeout of requests that carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithResultCache sizes the by-id cache of finished analyses.
func WithResultCache(size int, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.results = newResultCache(size, ttl)
	}
}

// WithContentCache sizes the by-content cache of completed results.
func WithContentCache(size int, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.content = newContentCache(size, ttl)
	}
}

// WithIDGenerator sets the analysis id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		o.ids = g
	}
}

// WithNow sets the wall clock used for timestamps and processing time.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics exports counters to prometheus.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator runs analyses through resolve-config, the category stages,
// aggregation and deduplication.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - analysis state transitions happen under mu; a terminal state is final
//   - the content cache is written only under mu, together with the
//     Completed transition, so a cancelled analysis can never populate it
//   - a timeout or cancellation is terminal as soon as it fires, even when
//     a rule ignores its context; the slot is freed at the same moment
type Orchestrator struct {
	resolver  Resolver
	evaluator Evaluator

	maxConcurrent int
	queueLimit    int
	workers       int
	timeout       time.Duration
	ids           IDGenerator
	now           func() time.Time
	logger        *slog.Logger
	metrics       *Metrics

	results *resultCache
	content *contentCache
	stats   counters

	base     context.Context
	stopBase context.CancelCauseFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	live    map[string]*analysis
	queue   *pendingQueue
	running int
	seq     int64

	// Completed processing time, for estimatedTimeRemainingSec.
	completedRuns int64
	completedTime time.Duration
}

// New creates an Orchestrator.
func New(resolver Resolver, evaluator Evaluator, opts ...Option) *Orchestrator {
	base, stop := context.WithCancelCause(context.Background())
	o := &Orchestrator{
		resolver:      resolver,
		evaluator:     evaluator,
		maxConcurrent: DefaultMaxConcurrent,
		queueLimit:    DefaultQueueLimit,
		workers:       DefaultWorkers,
		timeout:       DefaultTimeout,
		ids:           UUIDv7Generator{},
		now:           time.Now,
		logger:        slog.Default(),
		base:          base,
		stopBase:      stop,
		live:          make(map[string]*analysis),
		queue:         newPendingQueue(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.results == nil {
		o.results = newResultCache(DefaultResultCacheSize, DefaultResultCacheTTL)
	}
	if o.content == nil {
		o.content = newContentCache(DefaultContentCacheSize, DefaultContentCacheTTL)
	}
	return o
}

// Handle tracks one submitted analysis.
type Handle struct {
	ID string

	o *Orchestrator
	a *analysis
}

// Status returns the current status.
func (h *Handle) Status() ir.AnalysisStatus {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.snapshot(h.a)
}

// Cancel cancels the analysis. It is a no-op once the analysis is terminal.
func (h *Handle) Cancel() {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	h.o.cancelLocked(h.a)
}

// Done is closed when the analysis reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.a.done
}

// Wait blocks until the analysis is terminal or ctx is done.
// A Failed or Cancelled analysis returns its *AnalysisError.
func (h *Handle) Wait(ctx context.Context) (ir.AnalysisResult, error) {
	return h.o.wait(ctx, h.a)
}

// Submit registers an analysis. It starts immediately when a processing
// slot is free and is queued otherwise.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if o.running >= o.maxConcurrent && o.queue.Len() >= o.queueLimit {
		o.stats.rejected.Add(1)
		o.metrics.rejected()
		return nil, &ResourceExhaustedError{
			Running:    o.running,
			Pending:    o.queue.Len(),
			QueueLimit: o.queueLimit,
		}
	}

	o.seq++
	a := &analysis{
		id:     o.ids.Generate(),
		seq:    o.seq,
		req:    req,
		done:   make(chan struct{}),
		cursor: newStageCursor(),
	}
	a.status = ir.AnalysisStatus{
		ID:          a.id,
		State:       ir.StatePending,
		CurrentStep: ir.StepQueued,
		StartedAt:   o.now(),
	}
	o.live[a.id] = a
	o.stats.submitted.Add(1)

	if o.running < o.maxConcurrent {
		o.startLocked(a)
	} else {
		o.queue.Enqueue(a)
		o.logger.Debug("analysis queued", "analysis_id", a.id, "position", o.queue.Len())
	}
	o.metrics.load(o.running, o.queue.Len())

	return &Handle{ID: a.id, o: o, a: a}, nil
}

// Analyze submits req and waits for its outcome. If ctx ends first the
// analysis is cancelled.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (ir.AnalysisResult, error) {
	h, err := o.Submit(ctx, req)
	if err != nil {
		return ir.AnalysisResult{}, err
	}
	res, err := h.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		h.Cancel()
		return ir.AnalysisResult{}, fmt.Errorf("analyze %s: %w", h.ID, ctx.Err())
	}
	return res, err
}

// Status returns the status of a live or recently finished analysis.
func (o *Orchestrator) Status(id string) (ir.AnalysisStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if a, ok := o.live[id]; ok {
		return o.snapshot(a), nil
	}
	if f, ok := o.results.get(id); ok {
		return f.status.Clone(), nil
	}
	return ir.AnalysisStatus{}, fmt.Errorf("status %s: %w", id, ErrNotFound)
}

// Result returns the result of a Completed analysis, the *AnalysisError of
// a Failed or Cancelled one, or ErrNotReady.
func (o *Orchestrator) Result(id string) (ir.AnalysisResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.live[id]; ok {
		return ir.AnalysisResult{}, fmt.Errorf("result %s: %w", id, ErrNotReady)
	}
	f, ok := o.results.get(id)
	if !ok {
		return ir.AnalysisResult{}, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if f.result == nil {
		return ir.AnalysisResult{}, f.err
	}
	return f.result.Clone(), nil
}

// Wait blocks until analysis id is terminal or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (ir.AnalysisResult, error) {
	o.mu.Lock()
	a, ok := o.live[id]
	o.mu.Unlock()

	if !ok {
		return o.Result(id)
	}
	return o.wait(ctx, a)
}

// Cancel cancels a Pending or Processing analysis. Cancelling a terminal
// analysis is a no-op.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.live[id]
	if !ok {
		if _, finished := o.results.get(id); finished {
			return nil
		}
		return fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	o.cancelLocked(a)
	return nil
}

// List returns the status of every live analysis in submission order.
func (o *Orchestrator) List() []ir.AnalysisStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	live := make([]*analysis, 0, len(o.live))
	for _, a := range o.live {
		live = append(live, a)
	}
	slices.SortFunc(live, func(x, y *analysis) int {
		return cmp.Compare(x.seq, y.seq)
	})

	out := make([]ir.AnalysisStatus, len(live))
	for i, a := range live {
		out[i] = o.snapshot(a)
	}
	return out
}

// Stats returns a snapshot of the orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	running, pending := o.running, o.queue.Len()
	o.mu.Unlock()

	return Stats{
		Submitted:           o.stats.submitted.Load(),
		Completed:           o.stats.completed.Load(),
		Failed:              o.stats.failed.Load(),
		Cancelled:           o.stats.cancelled.Load(),
		Rejected:            o.stats.rejected.Load(),
		CacheHits:           o.stats.cacheHits.Load(),
		CacheMisses:         o.stats.cacheMisses.Load(),
		Fallbacks:           o.stats.fallbacks.Load(),
		Running:             running,
		Pending:             pending,
		ContentCacheEntries: o.content.len(),
	}
}

// InvalidateContentCache drops every cached result. Call it after a
// configuration change that keeps the config id and version.
func (o *Orchestrator) InvalidateContentCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.content.purge()
}

// Close stops accepting submissions, cancels pending analyses and waits
// for running ones. If ctx ends first the running analyses are cancelled
// and ctx's error is returned.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		for _, a := range o.queue.Drain() {
			o.finalizeLocked(a, ir.StateCancelled, ir.ErrorCancelled, ErrClosed)
		}
		o.metrics.load(o.running, 0)
	}
	o.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		o.stopBase(ErrClosed)
		return nil
	case <-ctx.Done():
		o.stopBase(ErrClosed)
		<-idle
		return fmt.Errorf("close: %w", ctx.Err())
	}
}

func (o *Orchestrator) wait(ctx context.Context, a *analysis) (ir.AnalysisResult, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return ir.AnalysisResult{}, fmt.Errorf("wait %s: %w", a.id, ctx.Err())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if a.result == nil {
		return ir.AnalysisResult{}, a.err
	}
	return a.result.Clone(), nil
}

// startLocked moves a to Processing and launches its pipeline.
func (o *Orchestrator) startLocked(a *analysis) {
	o.running++
	a.processing = o.now()
	a.status.State = ir.StateProcessing

	timeout := a.req.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	cancelCtx, cancel := context.WithCancelCause(o.base)
	ctx, stop := context.WithTimeoutCause(cancelCtx, timeout, errTimedOut)
	a.cancel = cancel

	o.logger.Debug("analysis started", "analysis_id", a.id, "timeout", timeout)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer stop()
		defer cancel(nil)

		stopExpire := context.AfterFunc(ctx, func() { o.expire(ctx, a) })
		defer stopExpire()

		res, key, err := o.process(ctx, a)
		o.finish(ctx, a, res, key, err)
	}()
}

// expire finalizes a when its context ends before the pipeline returns.
// A rule that ignores ctx keeps its goroutine busy, but the analysis is
// terminal and its slot is free from here on; finish drops the late outcome.
func (o *Orchestrator) expire(ctx context.Context, a *analysis) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if a.status.State != ir.StateProcessing {
		return
	}
	cause := context.Cause(ctx)
	state, kind := classify(ctx, cause)
	o.finalizeLocked(a, state, kind, cause)
	o.releaseLocked(a)
}

// finish records the pipeline outcome, frees the slot and promotes the
// next queued analysis.
func (o *Orchestrator) finish(ctx context.Context, a *analysis, res ir.AnalysisResult, key string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !a.status.State.Terminal() {
		if err == nil {
			o.setStepLocked(a, ir.StepComplete)
			if key != "" {
				o.content.put(key, res)
			}
			a.result = &res
			o.finalizeLocked(a, ir.StateCompleted, "", nil)
		} else {
			var pe *panicError
			if errors.As(err, &pe) {
				o.logger.Error("analysis panicked", "analysis_id", a.id, "panic", pe.value, "stack", string(pe.stack))
			}
			state, kind := classify(ctx, err)
			if ctx.Err() != nil {
				err = context.Cause(ctx)
			}
			o.finalizeLocked(a, state, kind, err)
		}
	}
	o.releaseLocked(a)
}

// releaseLocked gives a's processing slot back and promotes queued
// analyses. Only the first call per analysis counts.
func (o *Orchestrator) releaseLocked(a *analysis) {
	if a.released {
		return
	}
	a.released = true
	o.running--

	for !o.closed && o.running < o.maxConcurrent {
		next, ok := o.queue.TryDequeue()
		if !ok {
			break
		}
		o.startLocked(next)
	}
	o.metrics.load(o.running, o.queue.Len())
}

// cancelLocked cancels a if it is not terminal yet.
//
// A Processing analysis is finalized and releases its slot at once; its
// worker observes the cancellation between rules and its late outcome is
// dropped by finish.
func (o *Orchestrator) cancelLocked(a *analysis) {
	switch a.status.State {
	case ir.StatePending:
		o.queue.Remove(a.id)
		o.finalizeLocked(a, ir.StateCancelled, ir.ErrorCancelled, errCancelledByCaller)
		o.metrics.load(o.running, o.queue.Len())
	case ir.StateProcessing:
		a.cancel(errCancelledByCaller)
		o.finalizeLocked(a, ir.StateCancelled, ir.ErrorCancelled, errCancelledByCaller)
		o.releaseLocked(a)
	}
}

// finalizeLocked moves a to a terminal state and publishes it to the
// result cache.
func (o *Orchestrator) finalizeLocked(a *analysis, state ir.AnalysisState, kind ir.ErrorKind, cause error) {
	now := o.now()
	a.status.State = state
	a.status.CompletedAt = &now
	a.status.EstimatedTimeRemainingSec = nil

	var elapsed time.Duration
	if !a.processing.IsZero() {
		elapsed = now.Sub(a.processing)
	}

	switch state {
	case ir.StateCompleted:
		o.stats.completed.Add(1)
		o.completedRuns++
		o.completedTime += elapsed
		o.logger.Info("analysis completed",
			"analysis_id", a.id,
			"score", a.result.OverallScore,
			"problems", len(a.result.Problems),
			"elapsed", elapsed)
	default:
		a.err = &AnalysisError{AnalysisID: a.id, Kind: kind, Err: cause}
		a.status.Error = &ir.ErrorInfo{Kind: kind, Message: cause.Error()}
		if state == ir.StateCancelled {
			o.stats.cancelled.Add(1)
			o.logger.Info("analysis cancelled", "analysis_id", a.id, "err", cause)
		} else {
			o.stats.failed.Add(1)
			o.logger.Warn("analysis failed", "analysis_id", a.id, "kind", kind, "err", cause)
		}
	}
	o.metrics.finished(state, elapsed)

	delete(o.live, a.id)
	o.results.put(a.id, finished{
		status: a.status.Clone(),
		result: a.result,
		err:    a.err,
	})
	close(a.done)
}

// snapshot returns a copy of a's status with the queue position of a
// pending analysis and the remaining-time estimate.
func (o *Orchestrator) snapshot(a *analysis) ir.AnalysisStatus {
	s := a.status.Clone()
	if s.State == ir.StatePending {
		if i := o.queue.Position(a.id); i >= 0 {
			pos := i + 1
			s.QueuePosition = &pos
		}
	}
	if s.State.Terminal() || o.completedRuns == 0 {
		return s
	}
	avg := o.completedTime / time.Duration(o.completedRuns)
	remaining := avg.Seconds() * float64(100-s.ProgressPct) / 100
	secs := int(math.Ceil(remaining))
	s.EstimatedTimeRemainingSec = &secs
	return s
}

// setStepLocked records a visited step. Progress never decreases.
func (o *Orchestrator) setStepLocked(a *analysis, step string) {
	if a.status.State.Terminal() {
		return
	}
	a.status.CurrentStep = step
	a.status.Steps = append(a.status.Steps, step)
	if pct := stepProgress[step]; pct > a.status.ProgressPct {
		a.status.ProgressPct = pct
	}
}

func (o *Orchestrator) setStep(a *analysis, step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStepLocked(a, step)
}

// stageDone reports a finished category worker; category steps are
// released in pipeline order.
func (o *Orchestrator) stageDone(a *analysis, stage ir.Category) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range a.cursor.Complete(stage) {
		o.setStepLocked(a, string(c))
	}
}

// classify maps a pipeline error to the terminal state and error kind.
// The context cause wins: a rule that failed because the analysis timed
// out is a timeout, not a rule failure.
func classify(ctx context.Context, err error) (ir.AnalysisState, ir.ErrorKind) {
	if ctx.Err() != nil {
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, errTimedOut):
			return ir.StateFailed, ir.ErrorTimeout
		case errors.Is(cause, errCancelledByCaller), errors.Is(cause, ErrClosed):
			return ir.StateCancelled, ir.ErrorCancelled
		}
	}

	var ke *kindError
	if errors.As(err, &ke) {
		return ir.StateFailed, ke.kind
	}
	if rules.IsRuleCompilationError(err) {
		return ir.StateFailed, ir.ErrorRuleCompilation
	}
	return ir.StateFailed, ir.ErrorInternal
}
