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
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionsURL = "https://api.groq.com/openai/v1/chat/completions"

func createTestClient(t *testing.T) *Client {
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	options := DefaultOptions
	options.HTTPClient = httpClient
	options.RetryDelay = time.Millisecond

	client, err := NewClient(`"gsk_test"`, options)
	require.NoError(t, err)
	return client
}

func completionBody(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama-3.1-8b-instant",
		"choices": []interface{}{
			map[string]interface{}{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     42,
			"completion_tokens": 8,
			"total_tokens":      50,
		},
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("your_groq_api_key_here", DefaultOptions)
	missingKeyErr := &MissingAPIKeyError{}
	assert.ErrorAs(t, err, &missingKeyErr)
}

func TestComplete(t *testing.T) {
	client := createTestClient(t)

	var receivedBody map[string]interface{}
	var receivedAuthorization string
	httpmock.RegisterResponder("POST", completionsURL,
		func(req *http.Request) (*http.Response, error) {
			receivedAuthorization = req.Header.Get("Authorization")
			err := json.NewDecoder(req.Body).Decode(&receivedBody)
			if err != nil {
				return httpmock.NewStringResponse(400, ""), nil
			}
			return httpmock.NewJsonResponse(200, completionBody("Your code has more bugs than a rainforest."))
		},
	)

	response, err := client.Complete(context.Background(), Request{
		SystemPrompt: "be mean",
		UserPrompt:   "roast me",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your code has more bugs than a rainforest.", response.Content)
	assert.Equal(t, Usage{PromptTokens: 42, CompletionTokens: 8, TotalTokens: 50}, response.Usage)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	assert.Equal(t, "Bearer gsk_test", receivedAuthorization)
	assert.Equal(t, "llama-3.1-8b-instant", receivedBody["model"])
	assert.InDelta(t, 0.8, receivedBody["temperature"], 0.0001)
	assert.EqualValues(t, 512, receivedBody["max_tokens"])
	messages := receivedBody["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "be mean", messages[0].(map[string]interface{})["content"])
	assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])
	assert.Equal(t, "roast me", messages[1].(map[string]interface{})["content"])

	assert.Equal(t, 50, client.Usage().TotalTokens)
}

func TestCompleteAuthenticationFailure(t *testing.T) {
	client := createTestClient(t)

	httpmock.RegisterResponder("POST", completionsURL,
		httpmock.NewJsonResponderOrPanic(401, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Invalid API Key",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		}),
	)

	_, err := client.Complete(context.Background(), Request{UserPrompt: "roast me"})
	authErr := &AuthenticationError{}
	assert.ErrorAs(t, err, &authErr)
	// Authentication failures are not retried
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	client := createTestClient(t)

	calls := 0
	httpmock.RegisterResponder("POST", completionsURL,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewJsonResponse(503, map[string]interface{}{
					"error": map[string]interface{}{"message": "overloaded"},
				})
			}
			return httpmock.NewJsonResponse(200, completionBody("third time's the roast"))
		},
	)

	response, err := client.Complete(context.Background(), Request{UserPrompt: "roast me"})
	require.NoError(t, err)
	assert.Equal(t, "third time's the roast", response.Content)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	client := createTestClient(t)

	httpmock.RegisterResponder("POST", completionsURL,
		httpmock.NewJsonResponderOrPanic(429, map[string]interface{}{
			"error": map[string]interface{}{"message": "rate limited"},
		}),
	)

	_, err := client.Complete(context.Background(), Request{UserPrompt: "roast me"})
	assert.Error(t, err)
	assert.Equal(t, int(DefaultOptions.MaxAttempts), httpmock.GetTotalCallCount())
}

func TestCompleteWithoutChoices(t *testing.T) {
	client := createTestClient(t)

	body := completionBody("")
	body["choices"] = []interface{}{}
	httpmock.RegisterResponder("POST", completionsURL, httpmock.NewJsonResponderOrPanic(200, body))

	_, err := client.Complete(context.Background(), Request{UserPrompt: "roast me"})
	emptyErr := &EmptyCompletionError{}
	assert.ErrorAs(t, err, &emptyErr)
}

func streamChunk(content string) string {
	chunk := map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1700000000,
		"model":   "llama-3.1-8b-instant",
		"choices": []interface{}{
			map[string]interface{}{
				"index": 0,
				"delta": map[string]interface{}{"content": content},
			},
		},
	}
	data, _ := json.Marshal(chunk)
	return "data: " + string(data) + "\n\n"
}

func TestStream(t *testing.T) {
	client := createTestClient(t)

	body := streamChunk("Your ") + streamChunk("") + streamChunk("commits ") + streamChunk("are cries for help.") +
		"data: [DONE]\n\n"
	httpmock.RegisterResponder("POST", completionsURL,
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, body)
			resp.Header.Set("Content-Type", "text/event-stream")
			return resp, nil
		},
	)

	deltas := []string{}
	response, err := client.Stream(context.Background(), Request{UserPrompt: "roast me"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Your ", "commits ", "are cries for help."}, deltas)
	assert.Equal(t, "Your commits are cries for help.", response.Content)
	assert.Equal(t, strings.Join(deltas, ""), response.Content)
}
