// Package hourglass advances open turns toward completion. Each tick reads
// a batch of open turns, fixes their expiration, sends the initial prompt
// and the one-time warning, and resolves lapsed turns by AI autofill or a
// host override reminder.
package hourglass

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zulandar/hourglass/internal/analytics"
	"github.com/zulandar/hourglass/internal/fallback"
	"github.com/zulandar/hourglass/internal/models"
	"github.com/zulandar/hourglass/internal/notify"
	"github.com/zulandar/hourglass/internal/store"
)

const (
	defaultBatchSize        = 50
	defaultWarningThreshold = 60 * time.Second
	defaultStoreTimeout     = 10 * time.Second
	// defaultWindow is used for the due time shown in the prompt when a
	// turn has no response window.
	defaultWindow = 30 * time.Minute
)

// ErrBusy is returned by Tick when another tick is still running.
var ErrBusy = errors.New("hourglass: tick already running")

// ReminderPolicy controls how often host override turns are re-announced.
type ReminderPolicy string

const (
	// RemindRepeat sends a host override reminder on every tick.
	RemindRepeat ReminderPolicy = "repeat"
	// RemindOnce sends a single reminder and records it on the turn.
	RemindOnce ReminderPolicy = "once"
)

// Generator produces the fill for an expired ai_autofill turn.
type Generator interface {
	Generate(ctx context.Context, req fallback.Request) fallback.Result
}

// Options configures a Poller.
type Options struct {
	Store     store.TurnStore
	Notifier  notify.Dispatcher
	Generator Generator
	Analytics analytics.Sink

	BatchSize        int
	WarningThreshold time.Duration
	StoreTimeout     time.Duration
	DefaultWebhook   string
	AppBaseURL       string
	AIModel          string
	AIAPIKey         string
	HostReminders    ReminderPolicy

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// TickReport summarizes one tick.
type TickReport struct {
	ID               string    `json:"id"`
	Started          time.Time `json:"started"`
	Finished         time.Time `json:"finished"`
	Processed        int       `json:"processed"`
	ExpirationsSet   int       `json:"expirations_set"`
	Prompted         int       `json:"prompted"`
	Warned           int       `json:"warned"`
	AutoFilled       int       `json:"auto_filled"`
	AlreadyCompleted int       `json:"already_completed"`
	HostReminders    int       `json:"host_reminders"`
	Failed           int       `json:"failed"`
	Err              string    `json:"error,omitempty"`
}

// Poller runs ticks. A Poller is safe for concurrent use; overlapping
// Tick calls are rejected with ErrBusy rather than queued.
type Poller struct {
	opts Options
	busy atomic.Bool

	mu      sync.RWMutex
	last    TickReport
	hasLast bool
}

// New validates opts and returns a Poller.
func New(opts Options) (*Poller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("hourglass: store is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("hourglass: notifier is required")
	}
	if opts.Generator == nil {
		opts.Generator = fallback.NewGenerator(nil, 0)
	}
	if opts.Analytics == nil {
		opts.Analytics = analytics.NopSink{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = defaultWarningThreshold
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.HostReminders == "" {
		opts.HostReminders = RemindRepeat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{opts: opts}, nil
}

// LastReport returns the report of the most recent finished tick.
func (p *Poller) LastReport() (TickReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}

// Busy reports whether a tick is in progress.
func (p *Poller) Busy() bool {
	return p.busy.Load()
}

// Tick processes one batch of open turns. A failing turn is logged and
// counted and does not stop the batch. Only a failure to read the batch is
// returned as an error.
func (p *Poller) Tick(ctx context.Context) (report TickReport, err error) {
	if !p.busy.CompareAndSwap(false, true) {
		return TickReport{}, ErrBusy
	}
	defer p.busy.Store(false)

	report = TickReport{ID: uuid.NewString(), Started: p.opts.Now()}
	defer func() {
		report.Finished = p.opts.Now()
		p.mu.Lock()
		p.last, p.hasLast = report, true
		p.mu.Unlock()
	}()

	listCtx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	turns, err := p.opts.Store.ListOpen(listCtx, p.opts.BatchSize)
	cancel()
	if err != nil {
		report.Err = err.Error()
		return report, fmt.Errorf("hourglass: list open turns: %w", err)
	}

	for i := range turns {
		turn := &turns[i]
		if err := p.safeProcess(ctx, turn, &report); err != nil {
			report.Failed++
			log.Error().Err(err).
				Str("tick_id", report.ID).
				Str("turn_id", turn.ID).
				Str("branch_id", turn.BranchID).
				Msg("hourglass: turn failed")
		}
	}
	return report, nil
}

// safeProcess converts a panic inside one turn into an error.
func (p *Poller) safeProcess(ctx context.Context, t *models.Turn, r *TickReport) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.processTurn(ctx, t, r)
}

func (p *Poller) processTurn(ctx context.Context, t *models.Turn, r *TickReport) error {
	r.Processed++

	if err := p.ensureExpiration(ctx, t, r); err != nil {
		return err
	}
	if !t.NotifiedChannels.Prompted() {
		if err := p.notifyTurn(ctx, t, r); err != nil {
			return err
		}
	}
	if p.shouldWarn(t) {
		if err := p.sendWarning(ctx, t, r); err != nil {
			return err
		}
	}
	if t.ExpiresAt != nil && p.opts.Now().After(*t.ExpiresAt) {
		return p.handleTimeout(ctx, t, r)
	}
	return nil
}

// ensureExpiration persists createdAt + window for turns that have a
// window but no expiration yet.
func (p *Poller) ensureExpiration(ctx context.Context, t *models.Turn, r *TickReport) error {
	if t.ExpiresAt != nil {
		return nil
	}
	at, ok := t.ComputeExpiresAt()
	if !ok {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	if err := p.opts.Store.SetExpiresAt(sctx, t.ID, at); err != nil {
		return fmt.Errorf("ensure expiration: %w", err)
	}
	t.ExpiresAt = &at
	r.ExpirationsSet++
	return nil
}

func (p *Poller) notifyTurn(ctx context.Context, t *models.Turn, r *TickReport) error {
	if t.RecipientHandle == "" {
		log.Debug().Str("turn_id", t.ID).Msg("hourglass: no recipient handle, prompt deferred")
		return nil
	}

	due := t.CreatedAt.Add(defaultWindow)
	if t.ExpiresAt != nil {
		due = *t.ExpiresAt
	} else if at, ok := t.ComputeExpiresAt(); ok {
		due = at
	}

	channels := notify.DeriveChannels(t, p.opts.DefaultWebhook)
	n := p.notification(notify.KindPrompt, t, channels)
	n.RecipientHandle = t.RecipientHandle
	n.DueAt = due
	n.Remaining = clampPositive(due.Sub(p.opts.Now()))
	p.opts.Notifier.Dispatch(ctx, n)

	updated := t.NotifiedChannels.Union(channels.Slice()...)
	if err := p.setChannels(ctx, t, updated); err != nil {
		return fmt.Errorf("record prompt: %w", err)
	}
	r.Prompted++

	p.opts.Analytics.Capture(ctx, analytics.Event{
		Name:   analytics.EventTurnPrompted,
		TurnID: t.ID,
		Properties: map[string]any{
			"branch_id":               t.BranchID,
			"turn_id":                 t.ID,
			"recipient_handle":        t.RecipientHandle,
			"channel":                 channels.Strings(),
			"response_window_minutes": windowProperty(t),
		},
	})
	return nil
}

func (p *Poller) shouldWarn(t *models.Turn) bool {
	if t.ExpiresAt == nil || t.Completed() || t.NotifiedChannels.Has(models.ChannelWarning) {
		return false
	}
	remaining := t.ExpiresAt.Sub(p.opts.Now())
	return remaining > 0 && remaining <= p.opts.WarningThreshold
}

func (p *Poller) sendWarning(ctx context.Context, t *models.Turn, r *TickReport) error {
	remaining := clampPositive(t.ExpiresAt.Sub(p.opts.Now()))

	n := p.notification(notify.KindWarning, t, t.NotifiedChannels)
	n.DueAt = *t.ExpiresAt
	n.Remaining = remaining
	p.opts.Notifier.Dispatch(ctx, n)

	if err := p.setChannels(ctx, t, t.NotifiedChannels.Union(models.ChannelWarning)); err != nil {
		return fmt.Errorf("record warning: %w", err)
	}
	r.Warned++

	p.opts.Analytics.Capture(ctx, analytics.Event{
		Name:   analytics.EventTurnWarning,
		TurnID: t.ID,
		Properties: map[string]any{
			"branch_id":               t.BranchID,
			"turn_id":                 t.ID,
			"response_window_minutes": windowProperty(t),
			"remaining_ms":            remaining.Milliseconds(),
		},
	})
	return nil
}

func (p *Poller) handleTimeout(ctx context.Context, t *models.Turn, r *TickReport) error {
	if t.Completed() {
		return nil
	}
	now := p.opts.Now()
	elapsed := now.Sub(*t.ExpiresAt)

	if t.TimeoutStrategy.Normalize() == models.TimeoutHostOverride {
		return p.remindHost(ctx, t, r, elapsed)
	}

	fill := p.opts.Generator.Generate(ctx, fallback.Request{
		TurnID: t.ID,
		Prompt: promptFor(t),
		Model:  p.opts.AIModel,
		APIKey: p.opts.AIAPIKey,
	})

	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	applied, err := p.opts.Store.CompleteIfPending(sctx, t.ID, store.Completion{
		At:         now,
		By:         models.CompletedByAI,
		AutoFilled: true,
		Text:       fill.Content,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("autofill: %w", err)
	}
	if applied {
		t.CompletedAt = &now
		t.CompletedBy = models.CompletedByAI
		t.AutoFilled = true
		t.AutoFillText = fill.Content
		r.AutoFilled++
	} else {
		r.AlreadyCompleted++
		log.Debug().Str("turn_id", t.ID).Msg("hourglass: already completed")
	}

	p.opts.Analytics.Capture(ctx, analytics.Event{
		Name:   analytics.EventTimeoutAutofill,
		TurnID: t.ID,
		Properties: map[string]any{
			"branch_id":               t.BranchID,
			"turn_id":                 t.ID,
			"response_window_minutes": windowProperty(t),
			"elapsed_ms":              elapsed.Milliseconds(),
			"ai_model":                fill.Model,
			"ai_fallback":             fill.Fallback,
		},
	})

	n := p.notification(notify.KindTimeout, t, t.NotifiedChannels)
	n.Elapsed = elapsed
	n.AIFill = fill.Content
	p.opts.Notifier.Dispatch(ctx, n)
	return nil
}

// remindHost announces that a host has to resolve the turn. completed_at
// is never written on this path.
func (p *Poller) remindHost(ctx context.Context, t *models.Turn, r *TickReport, elapsed time.Duration) error {
	once := p.opts.HostReminders == RemindOnce
	if once && t.NotifiedChannels.Has(models.ChannelTimeout) {
		return nil
	}

	n := p.notification(notify.KindTimeout, t, t.NotifiedChannels)
	n.Elapsed = elapsed
	p.opts.Notifier.Dispatch(ctx, n)

	if once {
		if err := p.setChannels(ctx, t, t.NotifiedChannels.Union(models.ChannelTimeout)); err != nil {
			return fmt.Errorf("record host reminder: %w", err)
		}
	}
	r.HostReminders++

	p.opts.Analytics.Capture(ctx, analytics.Event{
		Name:   analytics.EventTimeoutHostOverride,
		TurnID: t.ID,
		Properties: map[string]any{
			"branch_id":               t.BranchID,
			"turn_id":                 t.ID,
			"response_window_minutes": windowProperty(t),
			"elapsed_ms":              elapsed.Milliseconds(),
		},
	})
	return nil
}

func (p *Poller) setChannels(ctx context.Context, t *models.Turn, set models.ChannelSet) error {
	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	if err := p.opts.Store.SetNotifiedChannels(sctx, t.ID, set); err != nil {
		return err
	}
	t.NotifiedChannels = set
	return nil
}

func (p *Poller) notification(kind notify.Kind, t *models.Turn, channels models.ChannelSet) notify.Notification {
	webhook := t.RecipientDiscordWebhook
	if webhook == "" {
		webhook = p.opts.DefaultWebhook
	}
	return notify.Notification{
		Kind:           kind,
		BranchID:       t.BranchID,
		TurnID:         t.ID,
		StoryTitle:     t.Branch.Title,
		Prompt:         promptFor(t),
		Channels:       channels,
		TurnURL:        TurnURL(p.opts.AppBaseURL, t.ID),
		Email:          t.RecipientEmail,
		Phone:          t.RecipientPhone,
		DiscordWebhook: webhook,
	}
}

// TurnURL returns the link to a turn, or "" when no base URL is configured.
func TurnURL(base, turnID string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/angry-lips/turn/" + turnID
}

func promptFor(t *models.Turn) string {
	if t.PromptText != "" {
		return t.PromptText
	}
	return "Complete the next beat for " + t.Branch.Title
}

func windowProperty(t *models.Turn) any {
	if t.ResponseWindowMinutes == nil {
		return nil
	}
	return *t.ResponseWindowMinutes
}

func clampPositive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
