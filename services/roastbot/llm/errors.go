// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// MissingAPIKeyError is raised when no usable API key is available
type MissingAPIKeyError struct{}

func (e *MissingAPIKeyError) Error() string {
	return "no valid API key configured"
}

// AuthenticationError is raised when the provider rejects the API key
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s)", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// EmptyCompletionError is raised when the provider answers without any choice
type EmptyCompletionError struct{}

func (e *EmptyCompletionError) Error() string {
	return "no completion received from the LLM"
}

var authenticationErrorCodes = []string{"invalid_api_key", "expired_api_key", "AuthenticationError"}

func isAuthenticationFailure(err error) bool {
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		if responseErr.StatusCode == http.StatusUnauthorized {
			return true
		}
		for _, code := range authenticationErrorCodes {
			if responseErr.ErrorCode == code {
				return true
			}
		}
		return false
	}
	message := err.Error()
	for _, code := range authenticationErrorCodes {
		if strings.Contains(message, code) {
			return true
		}
	}
	return false
}

// classifyError wraps the errors returned by the provider in the domain errors
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if isAuthenticationFailure(err) {
		return &AuthenticationError{Err: err}
	}
	return err
}

// isRetryable checks if a failed request is worth retrying: throttling, server errors and network errors
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.StatusCode == http.StatusTooManyRequests || responseErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
