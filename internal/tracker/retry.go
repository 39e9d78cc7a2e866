package tracker

import (
	"log"
	"strings"
	"time"
)

const (
	// Default retry configuration for tracker requests. Fetch gets a
	// single retry before a transient failure is surfaced.
	defaultMaxRetries   = 1
	defaultInitialDelay = 1 * time.Second
)

// retryTransient executes a function and retries it once after a short delay
// when the failure looks like a transient network condition.
func retryTransient(fn func() error) error {
	return retryTransientCustom(defaultMaxRetries, defaultInitialDelay, fn)
}

// retryTransientCustom allows custom retry configuration
func retryTransientCustom(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Tracker] Retry attempt %d/%d after %v delay", attempt+1, maxRetries+1, delay)
			time.Sleep(delay)
			delay *= 2
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				log.Printf("[Tracker] Succeeded on attempt %d/%d", attempt+1, maxRetries+1)
			}
			return nil
		}

		if !isRetryableError(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			log.Printf("[Tracker] Retryable error on attempt %d/%d: %v", attempt+1, maxRetries+1, lastErr)
		}
	}

	log.Printf("[Tracker] All %d attempts failed, giving up", maxRetries+1)
	return lastErr
}

// isRetryableError determines if an error should trigger a retry.
// TransientError values are always retryable; otherwise the error text is
// matched against common transient network conditions.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsTransient(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"eof",
		"timeout",
		"connection refused",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
