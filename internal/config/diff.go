package config

import (
	"reflect"
	"strings"

	logx "bulksend/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and log
// fields describing the new values. Secrets are reported only as "set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	oldSrv, newSrv := oldCfg.Server, newCfg.Server
	if oldSrv.Listen != newSrv.Listen || oldSrv.Pprof != newSrv.Pprof ||
		!reflect.DeepEqual(oldSrv.CORSOrigins, newSrv.CORSOrigins) ||
		oldSrv.ReadTimeout != newSrv.ReadTimeout || oldSrv.WriteTimeout != newSrv.WriteTimeout ||
		oldSrv.IdleTimeout != newSrv.IdleTimeout || oldSrv.ShutdownTimeout != newSrv.ShutdownTimeout {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.listen", newSrv.Listen),
			logx.Bool("server.pprof", newSrv.Pprof),
			logx.Int("server.cors_origins", len(newSrv.CORSOrigins)),
		)
	}

	// The token is applied live and never logged.
	if oldSrv.Token != newSrv.Token {
		changed = append(changed, "auth")
		attrs = append(attrs, logx.Bool("auth.token_set", newSrv.Token != ""))
	}

	if !strings.EqualFold(oldCfg.Delivery.Driver, newCfg.Delivery.Driver) {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.String("delivery.driver", newCfg.Delivery.Driver))
	}

	if oldCfg.SMTP != newCfg.SMTP {
		changed = append(changed, "smtp")
		attrs = append(attrs,
			logx.String("smtp.host", newCfg.SMTP.Host),
			logx.Int("smtp.port", newCfg.SMTP.Port),
			logx.String("smtp.timeout", newCfg.SMTP.Timeout),
			logx.Bool("smtp.password_set", newCfg.SMTP.Password != ""),
		)
	}

	if oldCfg.Resend != newCfg.Resend {
		changed = append(changed, "resend")
		attrs = append(attrs,
			logx.String("resend.from", newCfg.Resend.From),
			logx.Bool("resend.api_key_set", newCfg.Resend.APIKey != ""),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		d := newCfg.Dispatch
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.delay_min", d.DelayMin),
			logx.String("dispatch.delay_max", d.DelayMax),
			logx.Int("dispatch.max_active_jobs", d.MaxActiveJobs),
			logx.Int("dispatch.max_recipients", d.MaxRecipients),
			logx.Int("dispatch.max_workers", d.MaxWorkers),
			logx.Float64("dispatch.rate_per_sec", d.RatePerSec),
		)
	}

	if oldCfg.Retention != newCfg.Retention {
		changed = append(changed, "retention")
		attrs = append(attrs,
			logx.String("retention.ttl", newCfg.Retention.TTL),
			logx.Int("retention.max_jobs", newCfg.Retention.MaxJobs),
			logx.String("retention.schedule", newCfg.Retention.Schedule),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.redact_recipients", newCfg.Logging.RedactRecipients),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := "none"
		if newCfg.Storage != nil && strings.TrimSpace(newCfg.Storage.Driver) != "" {
			driver = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	return changed, attrs
}

// restartSections are read once at startup.
var restartSections = map[string]bool{
	"server":    true,
	"delivery":  true,
	"smtp":      true,
	"resend":    true,
	"retention": true,
	"storage":   true,
}

// RestartRequired filters changed sections down to those that only take
// effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
