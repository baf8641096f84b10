package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	ColorPrompt       = 0x5eead4
	ColorWarning      = 0xf97316
	ColorAutofill     = 0xa855f7
	ColorHostOverride = 0xfbbf24
)

const (
	dueLabelLayout  = "Jan 2, 3:04 PM MST"
	defaultHandle   = "Crew"
	smsPrefix       = "Angry Lips: "
	emailSubjectTag = "Angry Lips"
)

// FormatDuration renders d as "Hh Mm", "Mm Ss" or "Ss". Seconds are
// rounded and negative values clamp to zero.
func FormatDuration(d time.Duration) string {
	total := int64(math.Round(d.Seconds()))
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// DueLabel renders the human-facing due time.
func DueLabel(t time.Time) string {
	return t.Format(dueLabelLayout)
}

// RenderChat builds the chat webhook payload for n.
func RenderChat(n Notification) *discordgo.WebhookParams {
	var content string
	embed := &discordgo.MessageEmbed{}

	switch n.Kind {
	case KindPrompt:
		countdown := FormatDuration(n.Remaining)
		handle := n.RecipientHandle
		if handle == "" {
			handle = defaultHandle
		}
		content = fmt.Sprintf("⏳ **%s** left · %s, it's your turn!", countdown, handle)

		var b strings.Builder
		fmt.Fprintf(&b, "%s\n\nRespond before **%s**", n.Prompt, DueLabel(n.DueAt))
		if n.TurnURL != "" {
			fmt.Fprintf(&b, "\n[Open turn](%s)", n.TurnURL)
		}
		b.WriteString("\nAI fills the blank if the hourglass empties.")

		embed.Title = n.StoryTitle
		embed.Description = b.String()
		embed.Color = ColorPrompt

	case KindWarning:
		countdown := FormatDuration(n.Remaining)
		content = fmt.Sprintf("⚠️ **%s** left!", countdown)

		desc := fmt.Sprintf("%s\n⏳ %s remaining", n.Prompt, countdown)
		if n.TurnURL != "" {
			desc += fmt.Sprintf("\n[Finish turn](%s)", n.TurnURL)
		}
		embed.Title = n.StoryTitle
		embed.Description = desc
		embed.Color = ColorWarning

	case KindTimeout:
		content = fmt.Sprintf("⌛ Hourglass expired for **%s**", n.StoryTitle)
		embed.Title = n.Prompt
		if n.AIFill != "" {
			embed.Description = "AI co-host filled the blank with:\n> " + n.AIFill
			embed.Color = ColorAutofill
		} else {
			embed.Description = "Host override needed to keep the story moving."
			embed.Color = ColorHostOverride
		}
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: "Elapsed since expiry: " + FormatDuration(n.Elapsed),
		}
	}

	return &discordgo.WebhookParams{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
}

// RenderEmail builds the email subject and HTML body for n.
func RenderEmail(n Notification) (subject, html string) {
	switch n.Kind {
	case KindPrompt:
		countdown := FormatDuration(n.Remaining)
		subject = fmt.Sprintf("%s – %s left (%s)", emailSubjectTag, countdown, n.StoryTitle)
		html = promptEmail(n, countdown)
	case KindWarning:
		subject = emailSubjectTag + " – 1 minute left"
		html = warningEmail(n, FormatDuration(n.Remaining))
	case KindTimeout:
		subject = emailSubjectTag + " turn auto-filled"
		html = timeoutEmail(n)
	}
	return subject, html
}

// RenderSMS builds the short text body for n.
func RenderSMS(n Notification) string {
	switch n.Kind {
	case KindPrompt:
		s := fmt.Sprintf("%s%s (%s left)", smsPrefix, n.Prompt, FormatDuration(n.Remaining))
		return withLink(s, n.TurnURL)
	case KindWarning:
		s := fmt.Sprintf("%s%s left! %s", smsPrefix, FormatDuration(n.Remaining), n.Prompt)
		return withLink(s, n.TurnURL)
	case KindTimeout:
		if n.AIFill != "" {
			return smsPrefix + `timer expired. AI filled with "` + n.AIFill + `".`
		}
		return smsPrefix + "timer expired. Host override needed."
	}
	return ""
}

func withLink(s, url string) string {
	if url == "" {
		return s
	}
	return s + " → " + url
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

const (
	emailOuter = `<div style="font-family:Inter,system-ui; background:#020617; padding:24px; color:#e2e8f0;">`
	emailClose = `</div></div>`
)

func ctaButton(url, label string) string {
	if url == "" {
		return ""
	}
	return fmt.Sprintf(`<a href="%s" style="display:inline-flex;align-items:center;justify-content:center;padding:12px 24px;background:#5eead4;color:#020617;text-decoration:none;border-radius:9999px;font-weight:600;">%s →</a>`,
		escapeHTML(url), label)
}

func promptEmail(n Notification, countdown string) string {
	var b strings.Builder
	b.WriteString(emailOuter)
	b.WriteString(`<div style="max-width:520px; margin:0 auto; background:rgba(15,23,42,0.75); border:1px solid rgba(94,234,212,0.35); border-radius:16px; padding:24px;">`)
	b.WriteString(`<p style="letter-spacing:0.35em; text-transform:uppercase; color:#64748b; font-size:11px; margin:0 0 12px;">Angry Lips Turn</p>`)
	fmt.Fprintf(&b, `<h1 style="margin:0 0 12px; font-size:24px; color:#f8fafc;">%s</h1>`, escapeHTML(n.StoryTitle))
	fmt.Fprintf(&b, `<p style="margin:0 0 20px; font-size:15px; color:#cbd5f5;">%s</p>`, escapeHTML(n.Prompt))
	b.WriteString(`<div style="background:rgba(14,116,144,0.25); border-radius:12px; padding:16px; margin-bottom:24px;">`)
	fmt.Fprintf(&b, `<p style="margin:0; font-size:14px;">⏳ <strong>%s</strong> remaining</p>`, countdown)
	fmt.Fprintf(&b, `<p style="margin:8px 0 0; font-size:13px; color:#94a3b8;">Hourglass empties at <strong>%s</strong>.</p>`, DueLabel(n.DueAt))
	b.WriteString(`</div>`)
	b.WriteString(ctaButton(n.TurnURL, "Open live turn"))
	b.WriteString(`<p style="margin:24px 0 0; font-size:12px; color:#64748b;">Reply to this email or tap the button – all responses land in the same turn.</p>`)
	b.WriteString(emailClose)
	return b.String()
}

func warningEmail(n Notification, countdown string) string {
	var b strings.Builder
	b.WriteString(emailOuter)
	b.WriteString(`<div style="max-width:520px; margin:0 auto; background:rgba(76,29,149,0.6); border:1px solid rgba(248,113,113,0.45); border-radius:16px; padding:24px;">`)
	b.WriteString(`<h1 style="margin:0 0 12px; font-size:22px; color:#fee2e2;">One minute remaining!</h1>`)
	fmt.Fprintf(&b, `<p style="margin:0 0 16px; font-size:15px; color:#f8fafc;">%s</p>`, escapeHTML(n.Prompt))
	fmt.Fprintf(&b, `<p style="margin:0 0 24px; font-size:14px;">⏳ <strong>%s</strong> left.</p>`, countdown)
	b.WriteString(ctaButton(n.TurnURL, "Finish turn"))
	b.WriteString(emailClose)
	return b.String()
}

func timeoutEmail(n Notification) string {
	var b strings.Builder
	b.WriteString(emailOuter)
	b.WriteString(`<div style="max-width:520px; margin:0 auto; background:rgba(122,53,191,0.4); border:1px solid rgba(217,70,239,0.45); border-radius:16px; padding:24px;">`)
	b.WriteString(`<h1 style="margin:0 0 12px; font-size:22px; color:#f5d0fe;">Hourglass expired</h1>`)
	fmt.Fprintf(&b, `<p style="margin:0 0 16px; font-size:15px; color:#f8fafc;">%s</p>`, escapeHTML(n.Prompt))
	if n.AIFill != "" {
		b.WriteString(`<p style="margin:0 0 16px; font-size:14px;">AI co-host filled the blank with:</p>`)
		fmt.Fprintf(&b, `<blockquote style="margin:0 0 16px; font-size:16px; color:#f8fafc;">%s</blockquote>`, escapeHTML(n.AIFill))
	} else {
		b.WriteString(`<p style="margin:0 0 16px; font-size:14px;">Host override needed to resume the story.</p>`)
	}
	fmt.Fprintf(&b, `<p style="margin:0 0 24px; font-size:13px; color:#cbd5f5;">Elapsed since expiry: %s</p>`, FormatDuration(n.Elapsed))
	b.WriteString(emailClose)
	return b.String()
}
