package persist

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Retry policy for external-store calls. Transient failures back off
// and retry; permanent failures abort immediately. Unknown errors are
// treated as transient, which is the safer default for persistence.

var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

const maxRetries = 3

// Substrings marking connection, rate-limit, or temporary failures.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"service unavailable",
	"connection refused",
	"connection reset",
	"connection error",
	"broken pipe",
	"503",
	"429",
}

// Substrings marking failures retrying cannot fix.
var permanentPatterns = []string{
	"auth",
	"unauthorized",
	"forbidden",
	"not found",
	"constraint",
	"unique violation",
	"duplicate key",
	"invalid",
	"permission denied",
}

// IsTransient classifies an error as worth retrying. Permanent
// patterns win over transient ones; unmatched errors count as
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return true
}

// Do runs fn with up to three retries on transient errors, backing off
// 1s, 2s, 4s between attempts. Capability errors are permanent: the
// schema will not appear between attempts.
func Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsCapability(err) || !IsTransient(err) {
			slog.Warn("permanent_error_no_retry", "op", op, "error", err)
			return err
		}

		if attempt < maxRetries {
			delay := retryBackoff[min(attempt, len(retryBackoff)-1)]
			slog.Warn("transient_error_retrying",
				"op", op,
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			slog.Error("all_retries_exhausted",
				"op", op,
				"attempts", maxRetries+1,
				"error", err)
		}
	}
	return lastErr
}
