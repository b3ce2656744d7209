package activity

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"yanode/internal/breaker"
	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/yagna"
)

// Loop names used in logs and metrics.
const (
	LoopActivity = "activity"
	LoopInvoice  = "invoice"
)

// API is the subset of the daemon client the loops poll.
type API interface {
	Activities(ctx context.Context) ([]yagna.Activity, error)
	ActivityAgreement(ctx context.Context, activityID string) (yagna.Agreement, error)
	Usage(ctx context.Context, activityID string) (yagna.Usage, error)
	InvoiceEvents(ctx context.Context, after time.Time) ([]yagna.InvoiceEvent, error)
	Invoice(ctx context.Context, invoiceID string) (yagna.Invoice, error)
	Payments(ctx context.Context, after time.Time) ([]yagna.Payment, error)
}

// Recorder persists jobs. *history.Store implements it.
type Recorder interface {
	Save(ctx context.Context, snap job.Snapshot, runID string) error
	Finish(ctx context.Context, id string, at time.Time) error
	Update(ctx context.Context, id string, fn func(*job.Job) *job.Job) (bool, error)
	FindByActivity(ctx context.Context, activityID string) (history.Record, error)
}

// FailureCounter receives one call per failed polling cycle.
type FailureCounter interface {
	PollFailed(loop string)
}

// Options configure the loops.
type Options struct {
	ActivityInterval time.Duration
	InvoiceInterval  time.Duration
	BreakerFailures  int
	BreakerCooldown  time.Duration
	RunID            string
	Logger           *slog.Logger
	Recorder         Recorder
	Failures         FailureCounter
	Now              func() time.Time
}

// Loops owns the activity and invoice polling tasks for one run.
type Loops struct {
	api      API
	tracker  *job.Tracker
	opts     Options
	logger   *slog.Logger
	activity *breaker.CircuitBreaker
	invoice  *breaker.CircuitBreaker

	mu            sync.Mutex
	counts        map[yagna.ActivityState]int
	lastPoll      time.Time
	eventCursor   time.Time
	paymentCursor time.Time
}

// New prepares loops that drive tracker from api.
func New(api API, tracker *job.Tracker, opts Options) *Loops {
	if opts.ActivityInterval <= 0 {
		opts.ActivityInterval = time.Second
	}
	if opts.InvoiceInterval <= 0 {
		opts.InvoiceInterval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "activity")
	l := &Loops{
		api:     api,
		tracker: tracker,
		opts:    opts,
		logger:  logger,
		counts:  map[yagna.ActivityState]int{},
	}
	l.activity = breaker.New(breaker.Settings{
		Name:                LoopActivity,
		ConsecutiveFailures: opts.BreakerFailures,
		Cooldown:            opts.BreakerCooldown,
		Logger:              logger,
	})
	l.invoice = breaker.New(breaker.Settings{
		Name:                LoopInvoice,
		ConsecutiveFailures: opts.BreakerFailures,
		Cooldown:            opts.BreakerCooldown,
		Logger:              logger,
	})
	start := opts.Now()
	l.eventCursor = start
	l.paymentCursor = start
	return l
}

// Start launches both loops. They stop when ctx ends; wg is released as each
// one returns.
func (l *Loops) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.run(ctx, LoopActivity, l.opts.ActivityInterval, l.activity, l.ActivityCycle)
	}()
	go func() {
		defer wg.Done()
		l.run(ctx, LoopInvoice, l.opts.InvoiceInterval, l.invoice, l.InvoiceCycle)
	}()
}

func (l *Loops) run(ctx context.Context, name string, interval time.Duration, cb *breaker.CircuitBreaker, cycle func(context.Context) error) {
	logger := l.logger.With(logging.String("loop", name))
	logger.Debug("polling loop started", logging.Duration("interval", interval))
	defer logger.Debug("polling loop stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		err := cb.Execute(ctx, cycle)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, breaker.ErrCircuitOpen):
			logger.Debug("polling skipped; circuit open")
		default:
			logger.Debug("polling cycle failed; retrying next tick", logging.Error(err))
			if l.opts.Failures != nil {
				l.opts.Failures.PollFailed(name)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Counters returns activity counts by state from the last activity poll.
func (l *Loops) Counters() (map[yagna.ActivityState]int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.counts), l.lastPoll
}

// ActivityCycle polls activities once and reconciles the current job.
func (l *Loops) ActivityCycle(ctx context.Context) error {
	acts, err := l.api.Activities(ctx)
	if err != nil {
		return err
	}
	now := l.opts.Now()
	l.mu.Lock()
	l.counts = Count(acts)
	l.lastPoll = now
	l.mu.Unlock()

	if current := l.tracker.Current(); current != nil {
		act, found := Find(acts, current.ActivityID())
		var usage []float64
		if found && Live(act) {
			if u, err := l.api.Usage(ctx, act.ID); err == nil {
				usage = u.Current
			} else if ctx.Err() != nil {
				return ctx.Err()
			} else {
				l.logger.Debug("usage query failed", logging.String(logging.FieldJobID, current.ID()), logging.Error(err))
			}
		}
		prev, next, changed := l.tracker.Update(func(j *job.Job) *job.Job {
			if j == nil || j.ID() != current.ID() {
				return j
			}
			return Apply(j, act, found, usage, now)
		})
		if changed {
			l.record(ctx, prev, next, now)
		}
		if next != nil {
			return nil
		}
	}

	act, ok := SelectNew(acts)
	if !ok {
		return nil
	}
	agreement, err := l.api.ActivityAgreement(ctx, act.ID)
	if err != nil {
		return err
	}
	var usage []float64
	if u, err := l.api.Usage(ctx, act.ID); err == nil {
		usage = u.Current
	}
	created, err := NewJob(act, agreement, usage, now)
	if err != nil {
		l.logger.Debug("activity agreement incomplete; waiting",
			logging.String("activity_id", act.ID),
			logging.Error(err),
		)
		return nil
	}
	prev, next, changed := l.tracker.Update(func(j *job.Job) *job.Job {
		if j != nil {
			return j
		}
		return created
	})
	if changed {
		l.record(ctx, prev, next, now)
	}
	return nil
}

// InvoiceCycle polls invoice events and payments once.
func (l *Loops) InvoiceCycle(ctx context.Context) error {
	l.mu.Lock()
	eventCursor, paymentCursor := l.eventCursor, l.paymentCursor
	l.mu.Unlock()

	events, err := l.api.InvoiceEvents(ctx, eventCursor)
	if err != nil {
		return err
	}
	SortEvents(events)
	for _, ev := range events {
		if _, ok := PaymentState(ev.EventType); ok {
			if err := l.applyInvoiceEvent(ctx, ev); err != nil {
				return err
			}
		}
		if ev.EventDate.After(eventCursor) {
			eventCursor = ev.EventDate
		}
		l.mu.Lock()
		l.eventCursor = eventCursor
		l.mu.Unlock()
	}

	payments, err := l.api.Payments(ctx, paymentCursor)
	if err != nil {
		return err
	}
	for _, p := range payments {
		l.applyPayment(ctx, p)
		if p.Timestamp.After(paymentCursor) {
			paymentCursor = p.Timestamp
		}
	}
	l.mu.Lock()
	l.paymentCursor = paymentCursor
	l.mu.Unlock()
	return nil
}

func (l *Loops) applyInvoiceEvent(ctx context.Context, ev yagna.InvoiceEvent) error {
	inv, err := l.api.Invoice(ctx, ev.InvoiceID)
	if err != nil {
		if yagna.IsNotFound(err) {
			return nil
		}
		return err
	}
	_, next, changed := l.tracker.Update(func(j *job.Job) *job.Job {
		return ApplyInvoice(j, inv, ev)
	})
	if changed {
		l.save(ctx, next)
		l.logger.Info("job payment status updated",
			logging.String(logging.FieldJobID, next.ID()),
			logging.String("invoice_id", inv.InvoiceID),
			logging.String("state", string(paymentStateName(ev.EventType))),
		)
		return nil
	}
	if current := l.tracker.Current(); current != nil && current.ID() == inv.AgreementID {
		return nil
	}
	l.updateStored(ctx, inv.AgreementID, func(j *job.Job) *job.Job { return ApplyInvoice(j, inv, ev) })
	return nil
}

func (l *Loops) applyPayment(ctx context.Context, p yagna.Payment) {
	_, next, changed := l.tracker.Update(func(j *job.Job) *job.Job {
		return ApplyPayment(j, p)
	})
	if changed {
		l.save(ctx, next)
		paid, _ := PaymentFor(next, p)
		l.logger.Info("job payment confirmed",
			logging.String(logging.FieldJobID, next.ID()),
			logging.String("payment_id", p.PaymentID),
			logging.String("amount", paid.Amount.String()),
		)
	}
	if l.opts.Recorder == nil {
		return
	}
	current := l.tracker.Current()
	seen := map[string]bool{}
	if current != nil {
		seen[current.ID()] = true
	}
	for _, ap := range p.AgreementPayments {
		if seen[ap.AgreementID] {
			continue
		}
		seen[ap.AgreementID] = true
		l.updateStored(ctx, ap.AgreementID, func(j *job.Job) *job.Job { return ApplyPayment(j, p) })
	}
	for _, ap := range p.ActivityPayments {
		rec, err := l.opts.Recorder.FindByActivity(ctx, ap.ActivityID)
		if err != nil || seen[rec.Job.ID] {
			continue
		}
		seen[rec.Job.ID] = true
		l.updateStored(ctx, rec.Job.ID, func(j *job.Job) *job.Job { return ApplyPayment(j, p) })
	}
}

func (l *Loops) updateStored(ctx context.Context, id string, fn func(*job.Job) *job.Job) {
	if l.opts.Recorder == nil || id == "" {
		return
	}
	if _, err := l.opts.Recorder.Update(ctx, id, fn); err != nil && !errors.Is(err, history.ErrNotFound) {
		l.logger.Warn("history update failed", logging.String(logging.FieldJobID, id), logging.Error(err))
	}
}

// record persists a tracker transition.
func (l *Loops) record(ctx context.Context, prev, next *job.Job, now time.Time) {
	switch {
	case next == nil && prev != nil:
		l.logger.Info("job finished",
			logging.String(logging.FieldJobID, prev.ID()),
			logging.String("status", prev.Status().String()),
			logging.String("reward", prev.Reward().String()),
		)
		l.save(ctx, prev)
		if l.opts.Recorder != nil {
			if err := l.opts.Recorder.Finish(ctx, prev.ID(), now); err != nil {
				l.logger.Warn("history finish failed", logging.String(logging.FieldJobID, prev.ID()), logging.Error(err))
			}
		}
	case prev == nil && next != nil:
		l.logger.Info("job started",
			logging.String(logging.FieldJobID, next.ID()),
			logging.String("activity_id", next.ActivityID()),
			logging.String("requestor_id", next.RequestorID()),
			logging.String("status", next.Status().String()),
		)
		l.save(ctx, next)
	case next != nil:
		if prev.Status() != next.Status() {
			l.logger.Info("job status advanced",
				logging.String(logging.FieldJobID, next.ID()),
				logging.String("from", prev.Status().String()),
				logging.String("to", next.Status().String()),
			)
		}
		l.save(ctx, next)
	}
}

func (l *Loops) save(ctx context.Context, j *job.Job) {
	if l.opts.Recorder == nil || j == nil {
		return
	}
	if err := l.opts.Recorder.Save(ctx, j.Snapshot(), l.opts.RunID); err != nil {
		l.logger.Warn("history save failed", logging.String(logging.FieldJobID, j.ID()), logging.Error(err))
	}
}

func paymentStateName(t yagna.InvoiceEventType) job.PaymentState {
	state, _ := PaymentState(t)
	return state
}
