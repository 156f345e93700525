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
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/avast/retry-go/v4"
	"github.com/openlyinc/pointy"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "llm")

type Options struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int32   `yaml:"max_tokens"`
	// MaxAttempts is the number of tries for a request failing with a transient error
	MaxAttempts uint `yaml:"max_attempts"`
	// RetryDelay is the delay before the first retry, it doubles on every subsequent retry
	RetryDelay time.Duration `yaml:"retry_delay"`
	HTTPClient *http.Client  `yaml:"-"`
}

var DefaultOptions = Options{
	BaseURL:     "https://api.groq.com/openai/v1",
	Model:       "llama-3.1-8b-instant",
	Temperature: 0.8,
	MaxTokens:   512,
	MaxAttempts: 3,
	RetryDelay:  500 * time.Millisecond,
	HTTPClient:  nil,
}

// Request is a single turn completion request
type Request struct {
	SystemPrompt string
	UserPrompt   string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (u *Usage) add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

func usageFromCompletions(usage *azopenai.CompletionsUsage) Usage {
	if usage == nil {
		return Usage{}
	}
	result := Usage{}
	if usage.PromptTokens != nil {
		result.PromptTokens = int(*usage.PromptTokens)
	}
	if usage.CompletionTokens != nil {
		result.CompletionTokens = int(*usage.CompletionTokens)
	}
	if usage.TotalTokens != nil {
		result.TotalTokens = int(*usage.TotalTokens)
	} else {
		result.TotalTokens = result.PromptTokens + result.CompletionTokens
	}
	return result
}

type Response struct {
	Content  string
	Usage    Usage
	Duration time.Duration
}

// Completer generates the reply to a request
type Completer interface {
	Complete(ctx context.Context, request Request) (Response, error)
	Stream(ctx context.Context, request Request, onDelta func(delta string) error) (Response, error)
}

// Client is an OpenAI compatible chat completion client
type Client struct {
	client     *azopenai.Client
	options    Options
	usageMutex sync.Mutex
	usage      Usage
}

func NewClient(apiKey string, options Options) (*Client, error) {
	key, ok := ValidateAPIKey(apiKey)
	if !ok {
		return nil, &MissingAPIKeyError{}
	}
	clientOptions := &azopenai.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			// Retries are handled by the client itself
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if options.HTTPClient != nil {
		clientOptions.Transport = options.HTTPClient
	}
	client, err := azopenai.NewClientForOpenAI(strings.TrimSuffix(options.BaseURL, "/"), azcore.NewKeyCredential(key), clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to create the LLM client for %q (%w)", options.BaseURL, err)
	}
	if options.MaxAttempts == 0 {
		options.MaxAttempts = 1
	}
	return &Client{
		client:  client,
		options: options,
	}, nil
}

// Usage returns the tokens consumed by this client since its creation
func (c *Client) Usage() Usage {
	c.usageMutex.Lock()
	defer c.usageMutex.Unlock()
	return c.usage
}

func (c *Client) recordUsage(usage Usage) {
	c.usageMutex.Lock()
	defer c.usageMutex.Unlock()
	c.usage.add(usage)
}

func (c *Client) messages(request Request) []azopenai.ChatRequestMessageClassification {
	messages := []azopenai.ChatRequestMessageClassification{}
	if request.SystemPrompt != "" {
		messages = append(messages, &azopenai.ChatRequestSystemMessage{
			Content: azopenai.NewChatRequestSystemMessageContent(request.SystemPrompt),
		})
	}
	messages = append(messages, &azopenai.ChatRequestUserMessage{
		Content: azopenai.NewChatRequestUserMessageContent(request.UserPrompt),
	})
	return messages
}

func (c *Client) withRetries(ctx context.Context, f func() error) error {
	err := retry.Do(
		func() error {
			return classifyError(f())
		},
		retry.Context(ctx),
		retry.Attempts(c.options.MaxAttempts),
		retry.Delay(c.options.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"error":   err,
			}).Warn("LLM request failed, retrying")
		}),
	)
	return err
}

// Complete sends the request and returns the first generated choice
func (c *Client) Complete(ctx context.Context, request Request) (Response, error) {
	startTime := time.Now()
	var resp azopenai.GetChatCompletionsResponse
	err := c.withRetries(ctx, func() error {
		var err error
		resp, err = c.client.GetChatCompletions(
			ctx,
			azopenai.ChatCompletionsOptions{
				DeploymentName: pointy.String(c.options.Model),
				Messages:       c.messages(request),
				Temperature:    pointy.Float32(c.options.Temperature),
				MaxTokens:      pointy.Int32(c.options.MaxTokens),
			},
			nil,
		)
		return err
	})
	if err != nil {
		return Response{}, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return Response{}, &EmptyCompletionError{}
	}

	response := Response{
		Content:  *resp.Choices[0].Message.Content,
		Usage:    usageFromCompletions(resp.Usage),
		Duration: time.Since(startTime),
	}
	c.recordUsage(response.Usage)

	log.WithFields(logrus.Fields{
		"model":    c.options.Model,
		"tokens":   response.Usage.TotalTokens,
		"duration": response.Duration,
	}).Debug("completion received")
	return response, nil
}

// Stream sends the request and calls onDelta for every generated piece of text.
//
// Only the opening of the stream is retried, the returned response holds the full text.
func (c *Client) Stream(ctx context.Context, request Request, onDelta func(delta string) error) (Response, error) {
	startTime := time.Now()
	var resp azopenai.GetChatCompletionsStreamResponse
	err := c.withRetries(ctx, func() error {
		var err error
		resp, err = c.client.GetChatCompletionsStream(
			ctx,
			azopenai.ChatCompletionsStreamOptions{
				DeploymentName: pointy.String(c.options.Model),
				Messages:       c.messages(request),
				Temperature:    pointy.Float32(c.options.Temperature),
				MaxTokens:      pointy.Int32(c.options.MaxTokens),
			},
			nil,
		)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	defer resp.ChatCompletionsStream.Close()

	content := strings.Builder{}
	usage := Usage{}
	for {
		chunk, err := resp.ChatCompletionsStream.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, classifyError(err)
		}
		if chunk.Usage != nil {
			usage = usageFromCompletions(chunk.Usage)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta == nil || choice.Delta.Content == nil || *choice.Delta.Content == "" {
				continue
			}
			delta := *choice.Delta.Content
			content.WriteString(delta)
			if err := onDelta(delta); err != nil {
				return Response{}, err
			}
		}
	}

	if content.Len() == 0 {
		return Response{}, &EmptyCompletionError{}
	}

	response := Response{
		Content:  content.String(),
		Usage:    usage,
		Duration: time.Since(startTime),
	}
	c.recordUsage(response.Usage)
	return response, nil
}
