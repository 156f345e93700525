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

package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/ratelimit"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/roaster"
)

type sessionRequest struct {
	SessionID string `path:"session_id" json:"-" validate:"required" description:"Session identifier"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id" description:"Identifier of the created session"`
}

func (server *Server) createSession(*gin.Context) (createSessionResponse, error) {
	return createSessionResponse{
		SessionID: uuid.NewString(),
	}, nil
}

type exchangeResponse struct {
	User      string    `json:"user" description:"Message sent by the user"`
	Assistant string    `json:"assistant" description:"Reply of the bot"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Exchanges []exchangeResponse `json:"exchanges" description:"Remembered exchanges, oldest first"`
}

// wrapSessionError maps the errors of the memory and roaster packages to http errors
func wrapSessionError(err error) error {
	invalidSessionIDErr := &memory.InvalidSessionIDError{}
	if errors.As(err, &invalidSessionIDErr) {
		return wrapError(http.StatusBadRequest, err)
	}
	return wrapError(http.StatusInternalServerError, err)
}

func (server *Server) getSession(c *gin.Context, req *sessionRequest) (sessionResponse, error) {
	if err := memory.ValidateSessionID(req.SessionID); err != nil {
		return sessionResponse{}, wrapSessionError(err)
	}
	history, err := server.services.Memory.History(c, req.SessionID)
	if err != nil {
		return sessionResponse{}, wrapSessionError(err)
	}

	exchanges := make([]exchangeResponse, 0, len(history))
	for _, exchange := range history {
		exchanges = append(exchanges, exchangeResponse{
			User:      exchange.User,
			Assistant: exchange.Assistant,
			CreatedAt: exchange.CreatedAt,
		})
	}
	return sessionResponse{
		SessionID: req.SessionID,
		Exchanges: exchanges,
	}, nil
}

func (server *Server) clearSession(c *gin.Context, req *sessionRequest) (response, error) {
	if err := memory.ValidateSessionID(req.SessionID); err != nil {
		return response{}, wrapSessionError(err)
	}
	if err := server.services.Memory.Clear(c, req.SessionID); err != nil {
		return response{}, wrapSessionError(err)
	}
	return response{
		Message: "Chat cleared!",
	}, nil
}

type roastRequest struct {
	SessionID string `path:"session_id" json:"-" validate:"required" description:"Session identifier"`
	APIKey    string `header:"X-Groq-Api-Key" json:"-" description:"LLM API key, overrides the one configured server side"`
	Message   string `json:"message" description:"Message to roast"`
	Theme     string `json:"theme" description:"Optional roast theme, e.g. coding or gym"`
}

type roastResponse struct {
	Reply    string `json:"reply" description:"Reply of the bot"`
	Fallback bool   `json:"fallback" description:"Whether the reply is a canned message instead of a generated roast"`
}

// checkRateLimit records the request of the calling client, a 429 error is returned when it is over the limit
func (server *Server) checkRateLimit(c *gin.Context) error {
	err := server.services.Limiter.Check(c.ClientIP())
	if err == nil {
		return nil
	}
	limitErr := &ratelimit.LimitExceededError{}
	if errors.As(err, &limitErr) {
		server.services.Metrics.ObserveRateLimited()
		c.Header("Retry-After", strconv.Itoa(limitErr.WaitSeconds()))
		return httpError{
			StatusCode: http.StatusTooManyRequests,
			Message: "Slow down! You're roasting too fast. Wait " +
				strconv.Itoa(limitErr.WaitSeconds()) + " seconds before your next roast.",
			Err: err,
		}
	}
	return wrapError(http.StatusInternalServerError, err)
}

func (server *Server) roast(c *gin.Context, req *roastRequest) (roastResponse, error) {
	if err := memory.ValidateSessionID(req.SessionID); err != nil {
		return roastResponse{}, wrapSessionError(err)
	}
	if err := server.checkRateLimit(c); err != nil {
		return roastResponse{}, err
	}

	reply, err := server.services.Roaster.Roast(c, roaster.Turn{
		SessionID:      req.SessionID,
		Message:        req.Message,
		Theme:          req.Theme,
		APIKeyOverride: req.APIKey,
	})
	if err != nil {
		return roastResponse{}, wrapSessionError(err)
	}
	return roastResponse{
		Reply:    reply.Text,
		Fallback: reply.Fallback,
	}, nil
}
