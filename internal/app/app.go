package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"bulksend/internal/config"
	"bulksend/internal/delivery"
	"bulksend/internal/dispatch"
	"bulksend/internal/eventbus"
	"bulksend/internal/httpapi"
	"bulksend/internal/runtime/supervisor"
	"bulksend/internal/storage"
	logx "bulksend/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	bus   *eventbus.Bus

	registry *dispatch.Registry
	http     *http.Server
	timeouts serverTimeouts

	stopJanitor func()
}

func NewApp(cfgPath string) (*App, error) {
	return newApp(config.NewManager(cfgPath))
}

func newApp(cfgm *config.Manager) (*App, error) {
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateMapped(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("job journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	sender, err := delivery.Open(dc, log.With(logx.String("comp", "delivery")))
	if err != nil {
		closeStore()
		return nil, err
	}

	limits, err := mapLimits(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	ret, err := mapRetention(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	bus := eventbus.New()
	opts := []dispatch.Option{
		dispatch.WithLogger(log.With(logx.String("comp", "dispatch"))),
		dispatch.WithRetention(ret),
		dispatch.WithEvents(bus),
	}
	var history httpapi.History
	if store != nil {
		opts = append(opts, dispatch.WithJournal(store))
		history = store
	}
	reg, err := dispatch.NewRegistry(sender, limits, opts...)
	if err != nil {
		closeStore()
		return nil, err
	}

	api, err := httpapi.New(reg, httpapi.Options{
		Token:          func() string { return cfgm.Get().Server.Token },
		DefaultWorkers: func() int { return cfgm.Get().Dispatch.DefaultWorkers },
		MaxWorkers:     func() int { return reg.Limits().MaxWorkers },
		CORSOrigins:    cfg.Server.CORSOrigins,
		Pprof:          cfg.Server.Pprof,
		History:        history,
		Events:         bus,
		Log:            log.With(logx.String("comp", "http")),
	})
	if err != nil {
		closeStore()
		return nil, err
	}
	timeouts, err := mapServerTimeouts(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		bus:      bus,
		registry: reg,
		timeouts: timeouts,
		http: &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           api.Handler(),
			ReadTimeout:       timeouts.read,
			ReadHeaderTimeout: timeouts.read,
			WriteTimeout:      timeouts.write,
			IdleTimeout:       timeouts.idle,
		},
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Bind synchronously so a busy port fails Start instead of the supervisor.
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.http.Addr, err)
	}
	a.sup.Go("http.server", func(context.Context) error {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	stop, err := a.registry.StartJanitor()
	if err != nil {
		_ = a.http.Close()
		return err
	}
	a.stopJanitor = stop

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Progress events are per recipient; keep them at trace.
				if e.Type == eventbus.JobProgress {
					a.log.Trace("event", logx.String("type", e.Type), logx.String("job", e.JobID))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("job", e.JobID), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified", logx.String("state", "ready"))
	}

	a.log.Info("app started", logx.String("listen", ln.Addr().String()))
	return nil
}

// applyConfig pushes a committed config into the live components. Sections
// that cannot change in place are only reported.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if lim, err := mapLimits(newCfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else if err := a.registry.Apply(lim); err != nil {
		a.log.Warn("dispatch limits rejected; keeping previous", logx.Err(err))
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	a.sup.Cancel()

	// step bounds one shutdown phase so a stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
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
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// HTTP first so no job is admitted while the registry drains.
	step("http", a.timeouts.shutdown, a.http.Shutdown)
	step("janitor", time.Second, func(context.Context) error {
		if a.stopJanitor != nil {
			a.stopJanitor()
		}
		return nil
	})
	step("jobs", 5*time.Second, a.registry.Shutdown)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
