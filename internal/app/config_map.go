package app

import (
	"fmt"
	"strings"
	"time"

	"bulksend/internal/config"
	"bulksend/internal/delivery"
	"bulksend/internal/dispatch"
	"bulksend/internal/storage"
	logx "bulksend/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		RedactRecipients: cfg.Logging.RedactRecipients,
	}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	timeout, err := config.ParseDurationOrDefault("smtp.timeout", cfg.SMTP.Timeout, 20*time.Second)
	if err != nil {
		return delivery.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Delivery.Driver))
	if driver == "" {
		driver = "smtp"
	}
	return delivery.Config{
		Driver:  driver,
		Timeout: timeout,
		SMTP: delivery.SMTPConfig{
			Host:     strings.TrimSpace(cfg.SMTP.Host),
			Port:     cfg.SMTP.Port,
			Username: strings.TrimSpace(cfg.SMTP.Username),
			Password: cfg.SMTP.Password,
			From:     strings.TrimSpace(cfg.SMTP.From),
		},
		Resend: delivery.ResendConfig{
			APIKey: strings.TrimSpace(cfg.Resend.APIKey),
			From:   strings.TrimSpace(cfg.Resend.From),
		},
	}, nil
}

func mapLimits(cfg *config.Config) (dispatch.Limits, error) {
	d := cfg.Dispatch
	def := dispatch.DefaultLimits().Pacing
	minDelay, err := delayOrDefault("dispatch.delay_min", d.DelayMin, def.Min)
	if err != nil {
		return dispatch.Limits{}, err
	}
	maxDelay, err := delayOrDefault("dispatch.delay_max", d.DelayMax, def.Max)
	if err != nil {
		return dispatch.Limits{}, err
	}
	lim := dispatch.Limits{
		MaxActiveJobs: d.MaxActiveJobs,
		MaxRecipients: d.MaxRecipients,
		MaxWorkers:    d.MaxWorkers,
		Pacing:        dispatch.Pacing{Min: minDelay, Max: maxDelay},
		RatePerSec:    d.RatePerSec,
		RateBurst:     d.RateBurst,
	}
	if err := lim.Validate(); err != nil {
		return dispatch.Limits{}, fmt.Errorf("dispatch: %w", err)
	}
	return lim, nil
}

// delayOrDefault differs from config.ParseDurationOrDefault in that an
// explicit "0s" is kept.
func delayOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return config.ParseDurationField(path, raw)
}

func mapRetention(cfg *config.Config) (dispatch.Retention, error) {
	def := dispatch.DefaultRetention()
	ttl, err := config.ParseDurationOrDefault("retention.ttl", cfg.Retention.TTL, def.TTL)
	if err != nil {
		return dispatch.Retention{}, err
	}
	ret := dispatch.Retention{TTL: ttl, MaxJobs: cfg.Retention.MaxJobs, Schedule: strings.TrimSpace(cfg.Retention.Schedule)}
	if ret.Schedule == "" {
		ret.Schedule = def.Schedule
	}
	return ret, nil
}

// mapStorageConfig reports enabled=false when the journal is switched off.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path, Retain: sc.Retain}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retain: sc.Retain}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

type serverTimeouts struct {
	read, write, idle, shutdown time.Duration
}

func mapServerTimeouts(cfg *config.Config) (serverTimeouts, error) {
	var (
		t   serverTimeouts
		err error
	)
	s := cfg.Server
	if t.read, err = config.ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 15*time.Second); err != nil {
		return t, err
	}
	// 0 leaves writes unbounded.
	if t.write, err = config.ParseDurationOrDefault("server.write_timeout", s.WriteTimeout, 0); err != nil {
		return t, err
	}
	if t.idle, err = config.ParseDurationOrDefault("server.idle_timeout", s.IdleTimeout, 60*time.Second); err != nil {
		return t, err
	}
	if t.shutdown, err = config.ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, 10*time.Second); err != nil {
		return t, err
	}
	return t, nil
}

// validateMapped runs every mapping so a reload that would fail to apply is
// rejected before it is committed.
func validateMapped(cfg *config.Config) error {
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	if _, err := mapLimits(cfg); err != nil {
		return err
	}
	if _, err := mapRetention(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, err := mapServerTimeouts(cfg)
	return err
}
