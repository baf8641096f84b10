// Package notify renders turn notifications and delivers them over the
// recorded channels. Delivery is best effort: a failing channel is logged
// and never blocks the others or the caller.
package notify

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/zulandar/hourglass/internal/models"
)

// Kind identifies which notification is being sent.
type Kind string

const (
	KindPrompt  Kind = "prompt"
	KindWarning Kind = "warning"
	KindTimeout Kind = "timeout"
)

const defaultSendTimeout = 15 * time.Second

// Notification is everything needed to render and route one message.
type Notification struct {
	Kind            Kind
	BranchID        string
	TurnID          string
	StoryTitle      string
	Prompt          string
	RecipientHandle string
	Channels        models.ChannelSet
	DueAt           time.Time
	Remaining       time.Duration
	Elapsed         time.Duration
	TurnURL         string
	Email           string
	Phone           string
	DiscordWebhook  string
	AIFill          string
}

// Email is an outbound email message.
type Email struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// WebhookSender posts a chat payload to a webhook URL.
type WebhookSender interface {
	SendWebhook(ctx context.Context, url string, msg *discordgo.WebhookParams) error
}

// EmailSender delivers an email.
type EmailSender interface {
	SendEmail(ctx context.Context, e Email) error
}

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Dispatcher is implemented by Notifier.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Options configures a Notifier. Nil senders disable their channel.
type Options struct {
	Webhook     WebhookSender
	Email       EmailSender
	EmailFrom   string
	SMS         SMSSender
	SMSEnabled  bool
	SendTimeout time.Duration
}

// Notifier routes notifications to the configured transports.
type Notifier struct {
	opts Options
}

// New returns a Notifier.
func New(opts Options) *Notifier {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Notifier{opts: opts}
}

// DeriveChannels computes the channel set for a turn's first prompt:
// web always, discord when a webhook is available, email and sms when the
// recipient has the matching contact.
func DeriveChannels(t *models.Turn, defaultWebhook string) models.ChannelSet {
	chans := []models.Channel{models.ChannelWeb}
	if t.RecipientDiscordWebhook != "" || defaultWebhook != "" {
		chans = append(chans, models.ChannelDiscord)
	}
	if t.RecipientEmail != "" {
		chans = append(chans, models.ChannelEmail)
	}
	if t.RecipientPhone != "" {
		chans = append(chans, models.ChannelSMS)
	}
	return models.NewChannelSet(chans...)
}

// Dispatch sends n over every channel in n.Channels that has a usable
// destination. It does not return errors.
func (nf *Notifier) Dispatch(ctx context.Context, n Notification) {
	if n.Channels.Has(models.ChannelDiscord) {
		nf.send(ctx, n, models.ChannelDiscord, nf.sendChat)
	}
	if n.Channels.Has(models.ChannelEmail) && n.Email != "" {
		nf.send(ctx, n, models.ChannelEmail, nf.sendEmail)
	}
	if n.Channels.Has(models.ChannelSMS) && n.Phone != "" {
		nf.send(ctx, n, models.ChannelSMS, nf.sendSMS)
	}

	log.Info().
		Str("kind", string(n.Kind)).
		Str("branch_id", n.BranchID).
		Str("turn_id", n.TurnID).
		Strs("channels", n.Channels.Strings()).
		Msg("notify: dispatched")
}

// send runs one channel with its own timeout and panic boundary.
func (nf *Notifier) send(ctx context.Context, n Notification, ch models.Channel, fn func(context.Context, Notification) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("turn_id", n.TurnID).Str("channel", string(ch)).Msgf("notify: panic: %v", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, nf.opts.SendTimeout)
	defer cancel()

	if err := fn(sendCtx, n); err != nil {
		log.Warn().Err(err).
			Str("kind", string(n.Kind)).
			Str("turn_id", n.TurnID).
			Str("channel", string(ch)).
			Msg("notify: send failed")
	}
}

func (nf *Notifier) sendChat(ctx context.Context, n Notification) error {
	if n.DiscordWebhook == "" || nf.opts.Webhook == nil {
		log.Info().Str("turn_id", n.TurnID).Str("kind", string(n.Kind)).Msg("notify: chat webhook missing, skipped")
		return nil
	}
	return nf.opts.Webhook.SendWebhook(ctx, n.DiscordWebhook, RenderChat(n))
}

func (nf *Notifier) sendEmail(ctx context.Context, n Notification) error {
	if nf.opts.Email == nil || nf.opts.EmailFrom == "" {
		log.Info().Str("turn_id", n.TurnID).Str("kind", string(n.Kind)).Msg("notify: email skipped (config missing)")
		return nil
	}
	subject, html := RenderEmail(n)
	return nf.opts.Email.SendEmail(ctx, Email{
		To:      n.Email,
		From:    nf.opts.EmailFrom,
		Subject: subject,
		HTML:    html,
	})
}

func (nf *Notifier) sendSMS(ctx context.Context, n Notification) error {
	if !nf.opts.SMSEnabled {
		log.Info().Str("turn_id", n.TurnID).Str("kind", string(n.Kind)).Msg("notify: sms disabled, skipped")
		return nil
	}
	if nf.opts.SMS == nil {
		log.Info().Str("turn_id", n.TurnID).Str("kind", string(n.Kind)).Msg("notify: sms skipped (config missing)")
		return nil
	}
	return nf.opts.SMS.SendSMS(ctx, n.Phone, RenderSMS(n))
}
