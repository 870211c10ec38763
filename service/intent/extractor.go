package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/daverbj/solana-llm-integration/service/metrics"
)

// Completer is a text-completion capability: prompt in, free text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Resolver turns a free-text query into an Intent.
type Resolver interface {
	Extract(ctx context.Context, query string) (Intent, error)
}

// Extractor resolves intents with a two-stage pipeline: parse the completion,
// and on failure make exactly one repair call and parse again.
type Extractor struct {
	completer Completer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. If metrics is nil, no metrics are recorded.
func NewExtractor(completer Completer, m *metrics.Metrics, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer: completer,
		metrics:   m,
		logger:    logger,
	}
}

// Extract resolves query into an Intent using at most two completer calls.
// Any failure is returned as a *ParseError.
func (e *Extractor) Extract(ctx context.Context, query string) (Intent, error) {
	prompt, err := renderExtractPrompt(query)
	if err != nil {
		return Intent{}, e.fail(ctx, &ParseError{Stage: "extract", Err: err})
	}

	raw, err := e.complete(ctx, "extract", prompt)
	if err != nil {
		return Intent{}, e.fail(ctx, &ParseError{Stage: "extract", Err: err})
	}

	intent, parseErr := parseIntent(raw)
	if parseErr == nil {
		e.record("parsed")
		e.logger.DebugContext(ctx, "resolved intent",
			"action", intent.Action,
			"needs_address", intent.NeedsAddress,
		)
		return intent, nil
	}

	e.logger.WarnContext(ctx, "completion output malformed, attempting repair",
		"error", parseErr,
		"raw", raw,
	)

	prompt, err = renderRepairPrompt(raw, parseErr)
	if err != nil {
		return Intent{}, e.fail(ctx, &ParseError{Stage: "repair", Raw: raw, Err: err})
	}

	repaired, err := e.complete(ctx, "repair", prompt)
	if err != nil {
		return Intent{}, e.fail(ctx, &ParseError{Stage: "repair", Raw: raw, Err: err})
	}

	intent, err = parseIntent(repaired)
	if err != nil {
		return Intent{}, e.fail(ctx, &ParseError{Stage: "repair", Raw: repaired, Err: err})
	}

	e.record("repaired")
	e.logger.InfoContext(ctx, "resolved intent after repair",
		"action", intent.Action,
		"needs_address", intent.NeedsAddress,
	)
	return intent, nil
}

func (e *Extractor) complete(ctx context.Context, stage, prompt string) (string, error) {
	start := time.Now()
	out, err := e.completer.Complete(ctx, prompt)
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordCompletionCall(stage, status, time.Since(start).Seconds())
	}
	return out, err
}

func (e *Extractor) fail(ctx context.Context, err *ParseError) error {
	e.record("failed")
	e.logger.ErrorContext(ctx, "intent extraction failed",
		"stage", err.Stage,
		"error", err.Err,
	)
	return err
}

func (e *Extractor) record(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordIntentExtraction(outcome)
	}
}
