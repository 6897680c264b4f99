package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventpush/internal/admin"
	"eventpush/internal/config"
	"eventpush/internal/dispatch"
	"eventpush/internal/housekeeping"
	"eventpush/internal/notifier"
	"eventpush/internal/publish"
	rtsup "eventpush/internal/runtime/supervisor"
	"eventpush/internal/storage"
	"eventpush/internal/transport/telegram"
	logx "eventpush/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	reg  *prometheus.Registry

	store storage.Store
	tg    *telegram.Sender
	pub   *publish.Client
	disp  *dispatch.Dispatcher
	auth  *admin.PasswordAuth
	web   *admin.Server
	notif *notifier.Service
	hk    *housekeeping.Service
}

// New loads configuration and builds every component. Nothing runs until Start.
func New(cfgPath, envFile string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath, envFile)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg), nil)

	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logs,
		reg:  prometheus.NewRegistry(),
	}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.setTelegram(mapTelegramConfig(cfg))

	sc, _ := mapStorageConfig(cfg)
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, err
	}
	a.store = st

	pc, _ := mapPublishConfig(cfg)
	a.pub = publish.NewClient(pc, log.With(logx.String("comp", "publish")))
	if !pc.Configured() {
		a.log.Warn("wordpress not configured; due events will wait until it is")
	}

	nc, _ := mapNotifierConfig(cfg)
	var ntr notifier.Transport
	if a.tg != nil {
		ntr = a.tg
	}
	a.notif = notifier.New(nc, ntr, log.With(logx.String("comp", "notifier")), notifier.WithDedupStore(st))

	dc, _ := mapDispatchConfig(cfg)
	a.disp = dispatch.New(dc, st, a.pub, log.With(logx.String("comp", "dispatcher")),
		dispatch.WithMetrics(dispatch.NewPrometheusMetrics(a.reg)),
		dispatch.WithAlerter(a.notif),
	)

	a.auth = admin.NewPasswordAuth(cfg.Admin.Password)
	h, err := admin.NewHandler(st, a.auth, log.With(logx.String("comp", "admin")),
		admin.WithDispatchStatus(a.disp),
		admin.WithGatherer(a.reg),
	)
	if err != nil {
		_ = st.Close()
		logs.Close()
		return nil, err
	}
	ac, _ := mapAdminConfig(cfg)
	a.web = admin.NewServer(ac, h, log.With(logx.String("comp", "admin")))

	hc, _ := mapHousekeepingConfig(cfg)
	a.hk = housekeeping.New(hc, st, log.With(logx.String("comp", "housekeeping")))

	return a, nil
}

// setTelegram (re)builds the Telegram sender and hands it to the log sink and notifier.
func (a *App) setTelegram(tc telegram.Config) {
	var s *telegram.Sender
	if tc.Enabled() {
		var err error
		s, err = telegram.NewSender(tc, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			a.log.Warn("telegram sender unavailable", logx.Err(err))
			s = nil
		}
	}
	a.tg = s
	if s == nil {
		a.logs.SetSender(nil)
		if a.notif != nil {
			a.notif.SetTransport(nil)
		}
		return
	}
	a.logs.SetSender(s)
	if a.notif != nil {
		a.notif.SetTransport(s)
	}
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	// A recovered dispatcher panic is logged by the supervisor but is not fatal.
	a.sup.GoRestart("dispatcher", a.disp.Run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
	)

	a.web.Start(run)
	select {
	case <-a.web.Ready():
	case <-time.After(3 * time.Second):
		a.log.Warn("admin server not listening yet; retrying in background")
	case <-run.Done():
		return run.Err()
	}

	a.notif.Start(run)

	if err := a.hk.Start(run); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log, a.disp.Healthy)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("admin_addr", a.web.Addr()),
		logx.Duration("interval", a.disp.Interval()),
		logx.Bool("wordpress_configured", a.pub.Configured()),
		logx.Bool("alerts", a.notif.Enabled()),
	)
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig fans a committed config out to every live component.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range config.RestartRequired(prev, next) {
		a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
	}

	a.logs.Apply(mapLoggingConfig(next))
	if !reflect.DeepEqual(prev.Telegram, next.Telegram) {
		a.setTelegram(mapTelegramConfig(next))
	}

	if pc, err := mapPublishConfig(next); err == nil {
		a.pub.Apply(pc)
	}
	if dc, err := mapDispatchConfig(next); err == nil {
		a.disp.Reconfigure(dc)
	}
	a.auth.SetPassword(next.Admin.Password)
	if ac, err := mapAdminConfig(next); err == nil {
		a.web.Reconfigure(ctx, ac)
	}

	if nc, err := mapNotifierConfig(next); err == nil {
		was := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case was && !nc.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
			a.log.Info("alerts disabled via config")
		case !was && nc.Enabled:
			a.notif.Start(ctx)
			a.log.Info("alerts enabled via config")
		}
	}

	if hc, err := mapHousekeepingConfig(next); err == nil {
		if err := a.hk.Apply(hc); err != nil {
			a.log.Warn("housekeeping config rejected; keeping previous schedule", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse start order, each bounded so one
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("housekeeping", 2*time.Second, func(c context.Context) error { a.hk.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("admin", 3*time.Second, func(c context.Context) error { a.web.Stop(c); return nil })
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	a.logs.Close()
	return errors.Join(errs...)
}
