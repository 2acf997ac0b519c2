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

package httpclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus_SuccessReturnsNil(t *testing.T) {
	assert.NoError(t, ClassifyStatus(200, "", http.Header{}))
}

func TestClassifyStatus_RateLimitIsRetryable(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "3")
	err := ClassifyStatus(http.StatusTooManyRequests, "slow down", headers)
	var re *RetryableError
	assert.ErrorAs(t, err, &re)
	assert.True(t, re.IsRetryable())
	assert.Equal(t, int64(3), int64(re.RetryAfter.Seconds()))
}

func TestClassifyStatus_ClientErrorIsNotRetryable(t *testing.T) {
	err := ClassifyStatus(http.StatusBadRequest, "bad request", http.Header{})
	var re *RetryableError
	assert.ErrorAs(t, err, &re)
	assert.False(t, re.IsRetryable())
}

func TestClassifyStatus_ServerErrorIsRetryable(t *testing.T) {
	err := ClassifyStatus(http.StatusInternalServerError, "oops", http.Header{})
	var re *RetryableError
	assert.ErrorAs(t, err, &re)
	assert.True(t, re.IsRetryable())
}
