// Package housekeeping runs periodic maintenance on the event store.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	logx "eventpush/pkg/logx"
)

const DefaultSchedule = "0 3 * * *"

// Parser accepts 5-field specs, an optional leading seconds field, and descriptors like @daily.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Schedule string
	// AuditRetention <= 0 keeps audit rows forever.
	AuditRetention time.Duration
	Location       *time.Location
}

// Pruner deletes audit rows older than before.
type Pruner interface {
	PruneAudit(ctx context.Context, before time.Time) (int64, error)
}

// Result describes the last maintenance run.
type Result struct {
	At     time.Time     `json:"at"`
	Pruned int64         `json:"pruned"`
	Took   time.Duration `json:"took"`
	Err    string        `json:"err,omitempty"`
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	store Pruner
	log   logx.Logger
	clock clockwork.Clock

	c      *cron.Cron
	runCtx context.Context
	last   Result
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(cfg Config, store Pruner, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, store: store, log: log, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func scheduleOf(cfg Config) string {
	if sp := strings.TrimSpace(cfg.Schedule); sp != "" {
		return sp
	}
	return DefaultSchedule
}

func locationOf(cfg Config) *time.Location {
	if cfg.Location != nil {
		return cfg.Location
	}
	return time.Local
}

// Start registers the maintenance job and starts cron. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	spec := scheduleOf(s.cfg)
	sched, err := Parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("housekeeping schedule %q: %w", spec, err)
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(Parser),
		cron.WithLocation(locationOf(s.cfg)),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(func() { _, _ = s.RunNow(s.runCtx) }))
	c.Start()
	s.c = c
	s.log.Info("housekeeping started",
		logx.String("schedule", spec),
		logx.Duration("audit_retention", s.cfg.AuditRetention),
	)
	return nil
}

// Stop halts cron and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("housekeeping stopped")
}

// Apply swaps the config. A changed schedule or location re-registers the job.
// On a bad schedule the previous job keeps running and the error is returned.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return nil
	}
	if scheduleOf(prev) == scheduleOf(cfg) && locationOf(prev) == locationOf(cfg) {
		return nil
	}
	if _, err := Parser.Parse(scheduleOf(cfg)); err != nil {
		s.cfg.Schedule = prev.Schedule
		s.cfg.Location = prev.Location
		return fmt.Errorf("housekeeping schedule %q: %w", scheduleOf(cfg), err)
	}
	s.c.Stop()
	s.c = nil
	return s.startLocked()
}

// Next returns the next scheduled run, or zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow performs one maintenance pass immediately.
func (s *Service) RunNow(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	retention := s.cfg.AuditRetention
	s.mu.Unlock()

	start := s.clock.Now()
	res := Result{At: start}
	defer func() {
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
	}()

	if retention <= 0 {
		return 0, nil
	}
	if s.store == nil {
		err := errors.New("housekeeping: no store")
		res.Err = err.Error()
		return 0, err
	}
	cctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := s.store.PruneAudit(cctx, start.Add(-retention))
	res.Pruned = n
	res.Took = s.clock.Since(start)
	if err != nil {
		res.Err = err.Error()
		s.log.Warn("audit prune failed", logx.Err(err))
		return n, err
	}
	if n > 0 {
		s.log.Info("audit pruned", logx.Int64("rows", n), logx.Duration("took", res.Took))
	}
	return n, nil
}

func (s *Service) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
