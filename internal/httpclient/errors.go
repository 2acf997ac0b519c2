// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient holds the small HTTP error-classification helpers
// shared by every outbound client HNSC dials directly (today, the
// reasoner/critic generator in internal/llmclient).
package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// RetryableError wraps an HTTP failure with the information a caller
// needs to decide whether and how long to back off before retrying.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("httpclient: HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("httpclient: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether a caller should retry this error. 429 and
// 5xx are retryable; everything else (auth, malformed request) is not.
func (e *RetryableError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RateLimitInfo captures the rate-limit headers a provider returned
// alongside a 429 or a successful response.
type RateLimitInfo struct {
	RetryAfter time.Duration
	ResetTime  int64
}

// ParseRateLimitHeaders extracts Retry-After and reset-time headers in
// the shape OpenAI-compatible providers emit.
func ParseRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
			info.RetryAfter = d
		}
	}
	if resetStr := headers.Get("x-ratelimit-reset-requests"); resetStr != "" {
		var resetTime int64
		fmt.Sscanf(resetStr, "%d", &resetTime)
		info.ResetTime = resetTime
	}
	return info
}

// ClassifyStatus builds a RetryableError from a non-2xx HTTP response,
// or returns nil for a successful status.
func ClassifyStatus(statusCode int, body string, headers http.Header) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	info := ParseRateLimitHeaders(headers)
	return &RetryableError{StatusCode: statusCode, Message: body, RetryAfter: info.RetryAfter}
}
