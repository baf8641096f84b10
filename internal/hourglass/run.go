package hourglass

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronParser accepts standard 5-field expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule returns the cron schedule for expr, or a fixed interval
// schedule when expr is empty.
func ParseSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr = strings.TrimSpace(expr); expr != "" {
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("hourglass: parse schedule %q: %w", expr, err)
		}
		return sched, nil
	}
	if interval < time.Second {
		return nil, fmt.Errorf("hourglass: interval must be at least 1s, got %s", interval)
	}
	return cron.Every(interval), nil
}

// Run ticks once immediately and then on every activation of sched until
// ctx is cancelled. A tick in progress at cancellation runs to completion
// before Run returns.
func (p *Poller) Run(ctx context.Context, sched cron.Schedule) error {
	if sched == nil {
		return fmt.Errorf("hourglass: schedule is required")
	}

	p.runTick(ctx)
	if ctx.Err() != nil {
		return nil
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cron.FuncJob(func() { p.runTick(ctx) }))
	c.Start()
	log.Info().Msg("hourglass: scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("hourglass: scheduler stopped")
	return nil
}

// runTick runs one tick detached from ctx cancellation so shutdown never
// interrupts a batch halfway.
func (p *Poller) runTick(ctx context.Context) {
	report, err := p.Tick(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, ErrBusy):
		log.Debug().Msg("hourglass: previous tick still running, skipped")
	case err != nil:
		log.Error().Err(err).Str("tick_id", report.ID).Msg("hourglass: tick failed")
	default:
		LogReport(report)
	}
}

// LogReport writes the tick summary at info level.
func LogReport(r TickReport) {
	log.Info().
		Str("tick_id", r.ID).
		Int("processed", r.Processed).
		Int("expirations_set", r.ExpirationsSet).
		Int("prompted", r.Prompted).
		Int("warned", r.Warned).
		Int("auto_filled", r.AutoFilled).
		Int("already_completed", r.AlreadyCompleted).
		Int("host_reminders", r.HostReminders).
		Int("failed", r.Failed).
		Dur("took", r.Finished.Sub(r.Started)).
		Msg("hourglass: tick complete")
}

// cronLogger routes cron's internal logs through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
