package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"eventpush/internal/publish"
	"eventpush/internal/storage"
	logx "eventpush/pkg/logx"
)

const DefaultInterval = 60 * time.Second

// Store is the subset of storage.Store the dispatcher needs.
type Store interface {
	ListPending(ctx context.Context) ([]storage.Event, error)
	CountPending(ctx context.Context) (int, error)
	MarkSent(ctx context.Context, id int64, at time.Time) (bool, error)
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Publisher pushes one event's text. It reports failures in the Result, never as errors.
type Publisher interface {
	Publish(ctx context.Context, text string, deadline *string) publish.Result
}

// Alerter is told about push outcomes. Implementations must not block.
type Alerter interface {
	EventSent(ctx context.Context, ev storage.Event)
	PushFailed(ctx context.Context, ev storage.Event, res publish.Result)
}

type Config struct {
	Interval time.Duration
	Location *time.Location
}

// CycleReport summarizes one scan.
type CycleReport struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Scanned  int       `json:"scanned"`
	Due      int       `json:"due"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Invalid  int       `json:"invalid"`
	Vanished int       `json:"vanished"`
	Err      string    `json:"err,omitempty"`
}

// Stats is a point-in-time view for health endpoints.
type Stats struct {
	Cycles      uint64        `json:"cycles"`
	TotalSent   uint64        `json:"total_sent"`
	TotalFailed uint64        `json:"total_failed"`
	Interval    time.Duration `json:"interval"`
	LastCycle   CycleReport   `json:"last_cycle"`
	Pending     int           `json:"pending"`
}

// Dispatcher periodically pushes due, unsent events. Cycles never overlap:
// the scan, the pushes and the wait all run on the Run goroutine.
type Dispatcher struct {
	store   Store
	pub     Publisher
	log     logx.Logger
	clock   clockwork.Clock
	metrics MetricsCollector
	alerter Alerter

	mu       sync.Mutex
	interval time.Duration
	loc      *time.Location
	last     CycleReport
	pending  int
	progress time.Time // cycle start or last finished push

	cycles      atomic.Uint64
	totalSent   atomic.Uint64
	totalFailed atomic.Uint64

	wake chan struct{}
}

type Option func(*Dispatcher)

func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

func WithAlerter(a Alerter) Option {
	return func(d *Dispatcher) { d.alerter = a }
}

func New(cfg Config, store Store, pub Publisher, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		store:   store,
		pub:     pub,
		log:     log,
		clock:   clockwork.NewRealClock(),
		metrics: NoOpMetrics{},
		wake:    make(chan struct{}, 1),
	}
	d.apply(cfg)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) apply(cfg Config) {
	iv := cfg.Interval
	if iv <= 0 {
		iv = DefaultInterval
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	d.mu.Lock()
	d.interval = iv
	d.loc = loc
	d.mu.Unlock()
}

// Reconfigure applies a new interval/timezone. A pending wait restarts with the new interval.
func (d *Dispatcher) Reconfigure(cfg Config) {
	d.apply(cfg)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

func (d *Dispatcher) location() *time.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loc
}

// Run executes a cycle immediately and then one per interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started", logx.Duration("interval", d.Interval()))
	defer d.log.Info("dispatcher stopped")

	for {
		d.RunCycle(ctx)
		if !d.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) wait(ctx context.Context) bool {
	timer := d.clock.NewTimer(d.Interval())
	defer func() { timer.Stop() }()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case <-d.wake:
			iv := d.Interval()
			timer.Stop()
			timer = d.clock.NewTimer(iv)
			d.log.Debug("dispatcher interval changed", logx.Duration("interval", iv))
		}
	}
}

// RunCycle scans pending events once and pushes every due one, in sequence.
// A failing event does not stop the cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleReport {
	now := d.clock.Now()
	rep := CycleReport{Started: now}
	loc := d.location()
	d.markProgress(now)

	defer func() {
		rep.Finished = d.clock.Now()
		d.cycles.Add(1)
		d.metrics.RecordCycle(rep, rep.Finished.Sub(rep.Started))
		d.mu.Lock()
		d.last = rep
		d.mu.Unlock()
	}()

	events, err := d.store.ListPending(ctx)
	if err != nil {
		rep.Err = err.Error()
		if !errors.Is(err, context.Canceled) {
			d.log.Error("dispatcher scan failed", logx.Err(err))
		}
		return rep
	}
	rep.Scanned = len(events)

	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		due, valid := storage.Due(ev.PublishDatetime, now, loc)
		if !valid {
			rep.Invalid++
			d.log.Warn("unparseable publish time; event skipped",
				logx.Int64("event_id", ev.ID),
				logx.String("publish_datetime", ev.PublishDatetime),
			)
			continue
		}
		if !due {
			rep.Skipped++
			continue
		}
		rep.Due++
		d.dispatchOne(ctx, ev, &rep)
		d.markProgress(d.clock.Now())
	}

	if n, err := d.store.CountPending(ctx); err == nil {
		d.metrics.RecordPending(n)
		d.mu.Lock()
		d.pending = n
		d.mu.Unlock()
	}

	if rep.Due > 0 || rep.Invalid > 0 {
		d.log.Info("dispatch cycle",
			logx.Int("scanned", rep.Scanned),
			logx.Int("due", rep.Due),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
			logx.Int("invalid", rep.Invalid),
		)
	} else {
		d.log.Debug("dispatch cycle", logx.Int("scanned", rep.Scanned))
	}
	return rep
}

func (d *Dispatcher) markProgress(at time.Time) {
	d.mu.Lock()
	d.progress = at
	d.mu.Unlock()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev storage.Event, rep *CycleReport) {
	log := d.log.With(logx.Int64("event_id", ev.ID), logx.String("name", ev.Name))

	start := d.clock.Now()
	res := d.pub.Publish(ctx, ev.DisplayText, ev.Deadline)
	took := d.clock.Since(start)
	d.metrics.RecordPush(res.Reason, took)

	audit := storage.AuditEntry{
		At:      d.clock.Now(),
		Actor:   "dispatcher",
		Action:  "event.push",
		EventID: ev.ID,
		OK:      res.OK,
		TookMS:  took.Milliseconds(),
		Meta:    string(res.Reason),
	}

	if !res.OK {
		rep.Failed++
		d.totalFailed.Add(1)
		if res.Reason == publish.ReasonNotConfigured {
			log.Warn("push skipped: wordpress not configured")
		} else {
			log.Warn("push failed; will retry next cycle",
				logx.String("reason", string(res.Reason)),
				logx.Int("status", res.Status),
				logx.String("detail", res.Detail),
			)
		}
		audit.Error = res.Detail
		d.appendAudit(ctx, audit)
		if d.alerter != nil {
			d.alerter.PushFailed(ctx, ev, res)
		}
		return
	}

	ok, err := d.store.MarkSent(ctx, ev.ID, d.clock.Now())
	switch {
	case err != nil:
		// Pushed but not recorded: the next cycle pushes again.
		rep.Failed++
		d.totalFailed.Add(1)
		log.Error("push succeeded but commit failed", logx.Err(err))
		audit.OK = false
		audit.Error = "commit: " + err.Error()
	case !ok:
		rep.Vanished++
		log.Warn("event deleted while being pushed; nothing to commit")
		audit.Meta = "vanished"
	default:
		rep.Sent++
		d.totalSent.Add(1)
		log.Info("event pushed", logx.Duration("took", took))
		ev.Sent = true
		if d.alerter != nil {
			d.alerter.EventSent(ctx, ev)
		}
	}
	d.appendAudit(ctx, audit)
}

func (d *Dispatcher) appendAudit(ctx context.Context, e storage.AuditEntry) {
	if err := d.store.AppendAudit(ctx, e); err != nil && ctx.Err() == nil {
		d.log.Debug("audit append failed", logx.Err(err))
	}
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	last := d.last
	pending := d.pending
	iv := d.interval
	d.mu.Unlock()
	return Stats{
		Cycles:      d.cycles.Load(),
		TotalSent:   d.totalSent.Load(),
		TotalFailed: d.totalFailed.Load(),
		Interval:    iv,
		LastCycle:   last,
		Pending:     pending,
	}
}

// Healthy reports whether the loop made progress within the last few intervals.
// A long cycle stays healthy as long as its pushes keep completing.
func (d *Dispatcher) Healthy() bool {
	d.mu.Lock()
	last := d.last.Finished
	if d.progress.After(last) {
		last = d.progress
	}
	iv := d.interval
	d.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return d.clock.Since(last) <= 3*iv
}
