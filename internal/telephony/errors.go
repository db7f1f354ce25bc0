package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("telephony: provider not configured")

// RateLimitError is returned for every provider response that signals throttling.
// Callers must match it with errors.As instead of inspecting messages.
type RateLimitError struct {
	// RetryAfter is the provider-suggested delay, zero when none was given.
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telephony: rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "telephony: rate limited: " + e.Message
}

// APIError is a non-throttling provider failure.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("telephony: provider error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("telephony: provider error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// rateLimitCodes are provider error codes that mean throttling even without a 429.
var rateLimitCodes = map[string]bool{
	"CMN-301": true,
}

var rateLimitPhrases = []string{
	"rate limit",
	"rate exceeded",
	"too many requests",
}

// classifyResponse is the one place that decides whether a failed response is throttling.
func classifyResponse(status int, header http.Header, code, message string) error {
	if status == http.StatusTooManyRequests || rateLimitCodes[code] || mentionsRateLimit(message) {
		return &RateLimitError{RetryAfter: parseRetryAfter(header), Message: message}
	}
	return &APIError{StatusCode: status, Code: code, Message: message}
}

func mentionsRateLimit(message string) bool {
	m := strings.ToLower(message)
	for _, p := range rateLimitPhrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
