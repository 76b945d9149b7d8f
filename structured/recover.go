// Package structured recovers well-formed JSON from free-form generated
// text. Backends are expected to emit JSON but routinely wrap it in
// prose or code fences, or emit syntax defects; this package turns that
// into either a parsed value or an explicit unrecoverable signal. It
// never panics and never hands back a partially-populated value.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/council/llm"
)

// Status tags the outcome of a recovery attempt.
type Status string

const (
	StatusParsed           Status = "parsed"    // direct or extracted parse succeeded
	StatusRepaired         Status = "repaired"  // textual or model repair was needed
	StatusUnrecoverable    Status = "unrecoverable"
	StatusEmptyContent     Status = "empty_content"
	StatusTransientFailure Status = "transient_failure" // upstream call failed, retryable
	StatusFatalFailure     Status = "fatal_failure"     // upstream call failed, final
)

// Outcome is the tagged result of a recovery attempt. Raw holds the
// JSON span that parsed, when one did.
type Outcome struct {
	Status Status
	Raw    string
	Err    error
}

// Recovered reports whether the target value was populated.
func (o Outcome) Recovered() bool {
	return o.Status == StatusParsed || o.Status == StatusRepaired
}

// Engine drives the repair cascade. The gateway and repair model list
// are only consulted when cheap textual recovery fails and the caller
// supplied a schema.
type Engine struct {
	gateway      *llm.Gateway
	repairModels []string
	logger       *zap.Logger
}

// NewEngine creates a recovery engine. gateway may be nil, in which
// case the model-repair step is skipped.
func NewEngine(gateway *llm.Gateway, repairModels []string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gateway:      gateway,
		repairModels: repairModels,
		logger:       logger.With(zap.String("component", "structured")),
	}
}

// Recover attempts to populate v from text without any model calls:
// direct parse, then balanced-span extraction, then trailing-comma
// repair. v must be a non-nil pointer.
func (e *Engine) Recover(text string, v any) Outcome {
	if strings.TrimSpace(text) == "" {
		return Outcome{Status: StatusEmptyContent, Err: fmt.Errorf("no content to recover")}
	}

	// Step 1: the whole text may already be valid JSON.
	if err := decodeStrict([]byte(text), v); err == nil {
		return Outcome{Status: StatusParsed, Raw: strings.TrimSpace(text)}
	}

	// Step 2: walk the balanced candidate spans. Prose often carries
	// bracketed fragments (citations like [1], [note]) ahead of the
	// real payload, so a span that fails to decode must not end the
	// scan; resume past its opening delimiter and try the next one.
	// Braces inside quoted string values never count as structural.
	found := false
	for from := 0; ; {
		span, at, ok := nextBalancedSpan(text, from)
		if !ok {
			break
		}
		found = true
		if err := decodeStrict([]byte(span), v); err == nil {
			return Outcome{Status: StatusParsed, Raw: span}
		}

		// Step 3: cheap textual repairs.
		repaired := stripTrailingCommas(span)
		if err := decodeStrict([]byte(repaired), v); err == nil {
			return Outcome{Status: StatusRepaired, Raw: repaired}
		}
		from = at + 1
	}

	if !found {
		return Outcome{Status: StatusUnrecoverable, Err: fmt.Errorf("no balanced JSON span found")}
	}
	return Outcome{Status: StatusUnrecoverable, Err: fmt.Errorf("no span parsed after textual repair")}
}

// RecoverWithSchema runs the textual cascade and, if it fails, asks a
// deterministic repair backend to re-emit corrected JSON matching
// schema, trying each configured repair model in order.
func (e *Engine) RecoverWithSchema(ctx context.Context, text, schema string, v any) Outcome {
	out := e.Recover(text, v)
	if out.Status != StatusUnrecoverable || e.gateway == nil || schema == "" || len(e.repairModels) == 0 {
		return out
	}

	prompt := buildRepairPrompt(text, schema)
	for _, model := range e.repairModels {
		zero := float32(0)
		res := e.gateway.Invoke(ctx, &llm.ChatRequest{
			Model:       model,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Temperature: &zero,
		})
		if !res.OK() {
			e.logger.Debug("repair backend failed",
				zap.String("model", model), zap.String("status", string(res.Status)))
			continue
		}
		repaired := e.Recover(res.Text, v)
		if repaired.Recovered() {
			e.logger.Info("model repair recovered structure", zap.String("model", model))
			return Outcome{Status: StatusRepaired, Raw: repaired.Raw}
		}
	}

	return Outcome{Status: StatusUnrecoverable, Err: fmt.Errorf("repair cascade exhausted")}
}

// FromResult folds a gateway result and the recovery cascade into one
// outcome, so callers can match a single tag per invocation.
func (e *Engine) FromResult(ctx context.Context, res *llm.Result, schema string, v any) Outcome {
	switch res.Status {
	case llm.StatusOK:
		return e.RecoverWithSchema(ctx, res.Text, schema, v)
	case llm.StatusEmpty:
		return Outcome{Status: StatusEmptyContent, Err: res.Err}
	case llm.StatusTransient:
		return Outcome{Status: StatusTransientFailure, Err: res.Err}
	default:
		return Outcome{Status: StatusFatalFailure, Err: res.Err}
	}
}

// ExtractBalanced returns the first structurally balanced JSON object
// or array span in text. The scan tracks quoted strings and escape
// characters, so delimiters inside string values never count as
// structural.
func ExtractBalanced(text string) (string, bool) {
	span, _, ok := nextBalancedSpan(text, 0)
	return span, ok
}

// nextBalancedSpan finds the first balanced span whose opening
// delimiter sits at or after from, reporting where it starts so the
// caller can resume past a span that failed to decode. An opener that
// never closes is skipped rather than ending the scan.
func nextBalancedSpan(text string, from int) (string, int, bool) {
	for i := from; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if span, ok := scanBalanced(text, i); ok {
			return span, i, true
		}
	}
	return "", -1, false
}

// scanBalanced walks text from the opening delimiter at start until
// its matching close, skipping quoted strings and escapes.
func scanBalanced(text string, start int) (string, bool) {
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// stripTrailingCommas removes commas directly before a closing brace or
// bracket, the most common syntax defect in generated JSON.
func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// decodeStrict unmarshals into a fresh value of v's type and only
// assigns on success, so a failed parse can never leave v partially
// populated.
func decodeStrict(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	if !json.Valid(data) {
		return fmt.Errorf("input is not valid JSON")
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

func buildRepairPrompt(text, schema string) string {
	var sb strings.Builder
	sb.WriteString("The following text was supposed to contain a JSON value matching the schema below, but it does not parse.\n\n")
	sb.WriteString("Schema:\n```json\n")
	sb.WriteString(schema)
	sb.WriteString("\n```\n\nBroken output:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nRespond with ONLY the corrected JSON. No prose, no code fences.")
	return sb.String()
}
