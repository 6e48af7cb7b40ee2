package assistant

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrPermanent marks a model failure that retrying cannot fix, such as
// rejected credentials or a malformed request.
var ErrPermanent = errors.New("permanent model failure")

var statusCodePattern = regexp.MustCompile(`(?i)status(?:\s+code)?:?\s*(\d{3})`)

// statusCode extracts the HTTP status from a provider error message, or 0.
func statusCode(err error) int {
	m := statusCodePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// classify maps err onto langchaingo's provider-neutral error codes.
func classify(err error) llms.ErrorCode {
	var llmErr *llms.Error
	if errors.As(err, &llmErr) {
		return llmErr.Code
	}
	if errors.As(openai.MapError(err), &llmErr) {
		return llmErr.Code
	}
	return llms.ErrCodeUnknown
}

// retryable reports whether err is a transport failure worth another
// attempt: timeouts, rate limits, an unavailable provider and anything
// without a recognisable cause.
func retryable(err error) bool {
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch classify(err) {
	case llms.ErrCodeRateLimit, llms.ErrCodeProviderUnavailable, llms.ErrCodeTimeout:
		return true
	case llms.ErrCodeCanceled,
		llms.ErrCodeAuthentication,
		llms.ErrCodeInvalidRequest,
		llms.ErrCodeResourceNotFound,
		llms.ErrCodeQuotaExceeded,
		llms.ErrCodeContentFilter,
		llms.ErrCodeTokenLimit,
		llms.ErrCodeNotImplemented:
		return false
	}

	code := statusCode(err)
	switch {
	case code == 0:
		return true
	case code == 429, code == 408:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// backoff is base * 2^attempt.
func backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
