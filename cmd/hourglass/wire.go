package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zulandar/hourglass/internal/analytics"
	"github.com/zulandar/hourglass/internal/config"
	"github.com/zulandar/hourglass/internal/db"
	"github.com/zulandar/hourglass/internal/fallback"
	"github.com/zulandar/hourglass/internal/hourglass"
	"github.com/zulandar/hourglass/internal/notify"
	"github.com/zulandar/hourglass/internal/store"
)

const defaultConfigPath = "hourglass.yaml"

// loadConfig reads path. The default path is optional; an explicitly
// given path must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

func dsnFor(cfg *config.Config) string {
	d := cfg.Database
	if d.Driver == "mysql" && d.DSN == "" {
		return db.MySQLDSN(d.Host, d.Port, d.Name, d.User, d.Password)
	}
	return d.DSN
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	return db.Open(cfg.Database.Driver, dsnFor(cfg))
}

// services holds everything a running scheduler owns.
type services struct {
	db     *gorm.DB
	sink   analytics.Sink
	poller *hourglass.Poller
}

func (s *services) Close() {
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			log.Warn().Err(err).Msg("analytics: close")
		}
	}
	if err := db.Close(s.db); err != nil {
		log.Warn().Err(err).Msg("db: close")
	}
}

func newNotifier(cfg *config.Config) *notify.Notifier {
	opts := notify.Options{
		Webhook:    notify.NewHTTPWebhook(&http.Client{}),
		EmailFrom:  cfg.Notify.Email.From,
		SMSEnabled: cfg.Notify.SMS.Enabled,
	}
	if key := cfg.Notify.Email.SendGridAPIKey; key != "" {
		opts.Email = notify.NewSendGridEmail(key, "")
	}
	sms := cfg.Notify.SMS
	if sms.Enabled && sms.TwilioSID != "" && sms.TwilioAuth != "" && sms.From != "" {
		opts.SMS = notify.NewTwilioSMS(sms.TwilioSID, sms.TwilioAuth, sms.From)
	}
	return notify.New(opts)
}

func buildServices(cfg *config.Config, migrate bool) (*services, error) {
	gdb, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	svc := &services{db: gdb}

	if migrate {
		if err := db.AutoMigrate(gdb); err != nil {
			svc.Close()
			return nil, err
		}
	}

	st, err := store.NewGormStore(gdb)
	if err != nil {
		svc.Close()
		return nil, err
	}

	sink, err := analytics.New(cfg.Analytics.PostHogAPIKey, cfg.Analytics.PostHogHost)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.sink = sink

	gen := fallback.NewGenerator(fallback.NewOpenAICompleter(cfg.AI.BaseURL), cfg.AI.Timeout)

	poller, err := hourglass.New(hourglass.Options{
		Store:            st,
		Notifier:         newNotifier(cfg),
		Generator:        gen,
		Analytics:        sink,
		BatchSize:        cfg.BatchSize,
		WarningThreshold: cfg.WarningThreshold,
		DefaultWebhook:   cfg.Notify.DiscordWebhook,
		AppBaseURL:       cfg.AppBaseURL,
		AIModel:          cfg.AI.Model,
		AIAPIKey:         cfg.AI.APIKey,
		HostReminders:    hourglass.ReminderPolicy(cfg.HostOverride.Reminders),
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	svc.poller = poller
	return svc, nil
}
