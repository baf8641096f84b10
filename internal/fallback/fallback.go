// Package fallback produces filler text for turns nobody answered in time.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// SystemInstruction frames every completion request.
	SystemInstruction = "You are an improv partner. Respond with a single imaginative blank fill that fits the tone, usually one sentence."
	// Temperature is the sampling temperature for fills.
	Temperature = 0.9
	// HeuristicPrefix starts every deterministic fallback fill.
	HeuristicPrefix = "AI co-host improvises: "
	// HeuristicModel is reported as the model for deterministic fills.
	HeuristicModel = "heuristic"
	// MaxPromptRunes caps how much of the prompt the heuristic fill echoes.
	MaxPromptRunes = 120

	defaultTimeout = 20 * time.Second
)

// Request is the input to Generate.
type Request struct {
	TurnID string
	Prompt string
	Model  string
	APIKey string
}

// Result is the generated fill.
type Result struct {
	Content  string
	Model    string
	Fallback bool // true when the deterministic heuristic was used
}

// CompletionRequest is a chat-style completion call.
type CompletionRequest struct {
	System      string
	User        string
	Model       string
	APIKey      string
	Temperature float32
}

// CompletionResponse is the generated text and the model that produced it.
type CompletionResponse struct {
	Text  string
	Model string
}

// Completer performs creative completions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Generator calls a Completer and degrades to a heuristic fill.
type Generator struct {
	completer Completer
	timeout   time.Duration
}

// NewGenerator returns a Generator. A nil completer always uses the
// heuristic fill; a non-positive timeout uses the default.
func NewGenerator(completer Completer, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{completer: completer, timeout: timeout}
}

// Generate returns a fill for req. It never fails: every error path,
// including a panicking completer, yields Heuristic(req.Prompt).
func (g *Generator) Generate(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("turn_id", req.TurnID).Msgf("fallback: completer panic: %v", r)
			res = Heuristic(req.Prompt)
		}
	}()

	if g == nil || g.completer == nil {
		return Heuristic(req.Prompt)
	}
	if strings.TrimSpace(req.APIKey) == "" {
		log.Debug().Str("turn_id", req.TurnID).Msg("fallback: no api key, using heuristic fill")
		return Heuristic(req.Prompt)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.completer.Complete(callCtx, CompletionRequest{
		System:      SystemInstruction,
		User:        req.Prompt,
		Model:       req.Model,
		APIKey:      req.APIKey,
		Temperature: Temperature,
	})
	if err != nil {
		log.Warn().Err(err).Str("turn_id", req.TurnID).Msg("fallback: completion failed, using heuristic fill")
		return Heuristic(req.Prompt)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Warn().Str("turn_id", req.TurnID).Msg("fallback: empty completion, using heuristic fill")
		return Heuristic(req.Prompt)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return Result{Content: text, Model: model}
}

// Heuristic returns the deterministic fill for prompt.
func Heuristic(prompt string) Result {
	return Result{
		Content:  HeuristicPrefix + truncate(strings.TrimSpace(prompt), MaxPromptRunes),
		Model:    HeuristicModel,
		Fallback: true,
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// errNoChoices is returned by completers when the response has no text.
var errNoChoices = fmt.Errorf("fallback: completion returned no choices")
