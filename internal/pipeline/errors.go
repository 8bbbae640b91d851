package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/config"
	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/internal/providers"
)

// ErrInvalidURL is returned by Run for a missing or non-http(s) profile URL.
var ErrInvalidURL = errors.New("invalid profile URL")

// StageError names the stage that aborted a run.
type StageError struct {
	Stage    string // stage ID
	Name     string // display name
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailureKind groups errors by how the caller should react.
type FailureKind int

const (
	KindFatal     FailureKind = iota // stage failure that retrying will not fix
	KindConfig                       // missing credentials or bad input, fix and rerun
	KindStartup                      // MCP subprocess failed to come up
	KindTransient                    // rate limit, overload, timeout, 5xx
	KindCanceled                     // caller gave up
)

func (k FailureKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindStartup:
		return "startup"
	case KindTransient:
		return "transient"
	case KindCanceled:
		return "canceled"
	default:
		return "fatal"
	}
}

// Classify maps err onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return KindFatal
	}
	var ve *config.ValidationError
	if errors.As(err, &ve) || errors.Is(err, ErrInvalidURL) {
		return KindConfig
	}
	var se *mcp.StartupError
	if errors.As(err, &se) {
		return KindStartup
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if IsTransient(err) {
		return KindTransient
	}
	return KindFatal
}

// IsTransient reports whether a stage error is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, agent.ErrInjectionBlocked) {
		return false
	}
	var mie *agent.MaxIterationsError
	if errors.As(err, &mie) {
		return false
	}
	var se *mcp.StartupError
	if errors.As(err, &se) {
		return false
	}
	var he *providers.HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return containsAny(lower,
		"rate limit", "rate_limit", "too many requests",
		"overloaded", "temporarily unavailable",
		"timeout", "timed out",
		"connection reset", "connection refused", "unexpected eof",
	)
}

// FormatFailure turns err into one user-safe line. Raw API payloads are
// never shown; the full error is logged at debug.
func FormatFailure(err error) string {
	if err == nil {
		return ""
	}
	slog.Debug("pipeline failure", "error", err)

	prefix := ""
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		prefix = fmt.Sprintf("Stage %q failed: ", stageErr.Name)
	}

	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("Configuration error: set %s (environment, keyring or config file).", strings.Join(ve.Missing, ", "))
	}
	if errors.Is(err, ErrInvalidURL) {
		return "Invalid input: " + err.Error()
	}
	var se *mcp.StartupError
	if errors.As(err, &se) {
		if se.Timeout {
			return fmt.Sprintf("Web access server did not become ready in time (%s). Check network access and that %q runs.", se.Phase, se.Command)
		}
		return fmt.Sprintf("Web access server failed to start: %v", se.Err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled):
		return prefix + "run canceled."
	case errors.Is(err, agent.ErrInjectionBlocked):
		return prefix + "input rejected by the prompt-injection guard."
	case isContextOverflow(lower):
		return prefix + "input too large for the model's context window. Lower pipeline.stageMaxTokens or use a larger model."
	case containsAny(lower, "rate limit", "rate_limit", "too many requests", "http 429", "quota exceeded"):
		return prefix + "API rate limit reached. Please try again later."
	case strings.Contains(lower, "overloaded"):
		return prefix + "the model service is temporarily overloaded. Please try again in a moment."
	case containsAny(lower, "billing", "insufficient credits", "insufficient_quota", "payment required", "http 402"):
		return prefix + "API billing error. Your API key may have run out of credits."
	case containsAny(lower, "invalid api key", "invalid_api_key", "unauthorized", "http 401", "http 403", "incorrect api key"):
		return prefix + "authentication error. Check OPENAI_API_KEY."
	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return prefix + "request timed out. Please try again."
	case containsAny(lower, "model_not_found", "does not exist", "not a valid model"):
		return prefix + "model configuration error. Check provider.model."
	}

	var mie *agent.MaxIterationsError
	if errors.As(err, &mie) {
		return prefix + fmt.Sprintf("the model kept calling tools without finishing (%d rounds).", mie.Iterations)
	}

	slog.Warn("unclassified pipeline error", "error", err)
	return prefix + "unexpected error. Re-run with --verbose for details."
}

func isContextOverflow(lower string) bool {
	return containsAny(lower,
		"context_length_exceeded",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"request_too_large",
	)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
