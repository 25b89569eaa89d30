package llm

import (
	"context"
	"strings"
	"time"

	"github.com/pocketllm/pocketchat/internal/logger"
)

// Result is what the pipeline sees from a generation attempt. Degraded marks
// answers that are diagnostics for a backend failure rather than generated
// text; the pipeline currently persists and caches them like any other answer
// so the conversation never stalls, but the marker keeps the two
// distinguishable.
type Result struct {
	Text     string
	Degraded bool
}

const (
	emptyResponseText = "I apologize, but I couldn't generate a response."
	failurePrefix     = "Error connecting to LLM: "
)

// Gateway bounds a Provider call with a timeout and converts every failure
// into a Degraded result. It never returns an error: a backend hiccup must
// not break the transcript.
type Gateway struct {
	provider Provider
	timeout  time.Duration
}

func NewGateway(provider Provider, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{provider: provider, timeout: timeout}
}

func (g *Gateway) Generate(ctx context.Context, messages []Message) Result {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.provider.Chat(cctx, messages)
	if err != nil {
		logger.Warnw("llm generation failed", "error", err)
		return Result{Text: failurePrefix + err.Error(), Degraded: true}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Text: emptyResponseText, Degraded: true}
	}
	return Result{Text: text}
}
