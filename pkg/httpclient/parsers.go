package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicHeaders reads Anthropic's rate limit headers. Reset
// times arrive in RFC3339.
func ParseAnthropicHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{
		RetryAfter: retryAfterSeconds(headers.Get("retry-after")),
	}

	for _, h := range []string{
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
		"anthropic-ratelimit-requests-reset",
	} {
		if v := headers.Get(h); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				info.ResetTime = t.Unix()
				break
			}
		}
	}

	info.RequestsRemaining = atoiHeader(headers, "anthropic-ratelimit-requests-remaining")
	info.InputTokensRemaining = atoiHeader(headers, "anthropic-ratelimit-input-tokens-remaining")
	info.OutputTokensRemaining = atoiHeader(headers, "anthropic-ratelimit-output-tokens-remaining")
	return info
}

// ParseOpenAIHeaders reads OpenAI's rate limit headers. Reset times
// arrive as unix seconds.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{
		RetryAfter: retryAfterSeconds(headers.Get("Retry-After")),
	}

	for _, h := range []string{
		"x-ratelimit-reset-tokens",
		"x-ratelimit-reset-requests",
	} {
		if v := headers.Get(h); v != "" {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.ResetTime = ts
				break
			}
		}
	}

	info.RequestsRemaining = atoiHeader(headers, "x-ratelimit-remaining-requests")
	info.TokensRemaining = atoiHeader(headers, "x-ratelimit-remaining-tokens")
	return info
}

// ParseGeminiHeaders reads Gemini's rate limit headers. Gemini only
// exposes Retry-After.
func ParseGeminiHeaders(headers http.Header) RateLimitInfo {
	return RateLimitInfo{
		RetryAfter: retryAfterSeconds(headers.Get("Retry-After")),
	}
}

func retryAfterSeconds(v string) time.Duration {
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func atoiHeader(headers http.Header, name string) int {
	n, err := strconv.Atoi(headers.Get(name))
	if err != nil {
		return 0
	}
	return n
}
