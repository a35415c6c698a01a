package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Transport runs one agent task and returns its raw text output
type Transport interface {
	Run(ctx context.Context, task string) (string, error)
}

// AgentFailure is returned when retries on either failure class are exhausted
type AgentFailure struct {
	Attempts   int
	LastDetail string
}

func (e *AgentFailure) Error() string {
	return fmt.Sprintf("agent failed after %d attempts: %s", e.Attempts, e.LastDetail)
}

// RetryConfig holds retry configuration for agent calls
type RetryConfig struct {
	MaxAttempts       int           // Maximum total attempts (default: 3)
	InitialBackoff    time.Duration // Initial backoff for transport failures (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 120s)

	// MaxConcurrentCalls bounds concurrent agent invocations across
	// goroutines (0 = unlimited)
	MaxConcurrentCalls int
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		BackoffMultiplier:  2.0,
		Timeout:            120 * time.Second,
		MaxConcurrentCalls: 3,
	}
}

// Invoker drives an agent transport toward schema-valid output.
//
// It distinguishes two failure classes with different remediation:
//
//   - Transport failures (process/network): the input did not change, so
//     the retry waits with exponential backoff and re-sends the same task.
//   - Schema/parse failures: the fix is informational, not temporal, so
//     the retry re-invokes immediately with the failure detail appended
//     to the task ("retry-with-feedback").
//
// Both classes consume attempts from the same budget.
type Invoker struct {
	transport Transport
	retry     RetryConfig
	sem       *semaphore.Weighted
}

// NewInvoker creates an invoker over the given transport
func NewInvoker(transport Transport, retry RetryConfig) *Invoker {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return &Invoker{transport: transport, retry: retry, sem: sem}
}

// Invoke runs the task until the transport produces output satisfying the
// schema, or maxAttempts is exhausted. maxAttempts <= 0 uses the config
// default. Returns the validated object or an *AgentFailure.
func (inv *Invoker) Invoke(ctx context.Context, task string, schema Schema, maxAttempts int) (map[string]any, error) {
	obj, _, err := inv.invoke(ctx, task, schema, maxAttempts)
	return obj, err
}

// invoke also returns the raw winning output for typed decoding
func (inv *Invoker) invoke(ctx context.Context, task string, schema Schema, maxAttempts int) (map[string]any, string, error) {
	if maxAttempts <= 0 {
		maxAttempts = inv.retry.MaxAttempts
	}

	if inv.sem != nil {
		if err := inv.sem.Acquire(ctx, 1); err != nil {
			return nil, "", fmt.Errorf("failed to acquire agent call slot: %w", err)
		}
		defer inv.sem.Release(1)
	}

	currentTask := task
	backoff := inv.retry.InitialBackoff
	lastDetail := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, inv.retry.Timeout)
		output, err := inv.transport.Run(attemptCtx, currentTask)
		cancel()

		if err != nil {
			// Transport class: same input, wait and retry
			lastDetail = err.Error()

			if ctx.Err() != nil {
				return nil, "", fmt.Errorf("agent invocation canceled: %w", ctx.Err())
			}
			if !isRetriableTransportError(err) {
				return nil, "", &AgentFailure{Attempts: attempt, LastDetail: lastDetail}
			}
			if attempt == maxAttempts {
				break
			}

			slog.Warn("agent transport failed, backing off",
				"attempt", attempt, "max_attempts", maxAttempts,
				"backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * inv.retry.BackoffMultiplier)
				if backoff > inv.retry.MaxBackoff {
					backoff = inv.retry.MaxBackoff
				}
			case <-ctx.Done():
				return nil, "", fmt.Errorf("agent invocation canceled during backoff: %w", ctx.Err())
			}
			continue
		}

		obj, pf := Extract(output, schema)
		if pf == nil {
			if attempt > 1 {
				slog.Info("agent produced valid output after retries", "attempts", attempt)
			}
			return obj, output, nil
		}

		// Validation class: augment the task with the specific failure
		// and retry immediately - no delay fixes a malformed response.
		lastDetail = pf.Error()
		if attempt == maxAttempts {
			break
		}
		currentTask = appendFeedback(task, pf, schema)
		slog.Warn("agent output failed validation, retrying with feedback",
			"attempt", attempt, "max_attempts", maxAttempts,
			"stage", pf.Stage, "detail", pf.Detail)
	}

	return nil, "", &AgentFailure{Attempts: maxAttempts, LastDetail: lastDetail}
}

// InvokeInto runs Invoke and decodes the winning output into T
func InvokeInto[T any](ctx context.Context, inv *Invoker, task string, schema Schema, maxAttempts int) (T, error) {
	var result T

	_, raw, err := inv.invoke(ctx, task, schema, maxAttempts)
	if err != nil {
		return result, err
	}
	typed, pf := ExtractInto[T](raw, schema)
	if pf != nil {
		// Extract succeeded inside invoke, so only the typed decode can
		// fail here (shape mismatch between schema and T)
		return result, fmt.Errorf("failed to decode agent output: %w", pf)
	}
	return typed, nil
}

// appendFeedback builds the augmented retry task from the original task
// (not the previously augmented one, to avoid stacking feedback blocks)
func appendFeedback(task string, pf *ParseFailure, schema Schema) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nYour previous response was invalid: ")
	b.WriteString(pf.Detail)
	b.WriteString("\nRespond with a single valid JSON object containing the fields: ")
	b.WriteString(schema.Describe())
	b.WriteString(". Do not include any other text.")
	return b.String()
}

// isRetriableTransportError reports whether a transport error is transient.
// Rate limits, server errors, and network failures are retriable; client
// errors (auth, bad request) are not.
func isRetriableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") || strings.Contains(errStr, "404") {
		return false
	}

	return false
}
