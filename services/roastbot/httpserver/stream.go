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

	"github.com/gin-gonic/gin"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/roaster"
)

type roastStreamBody struct {
	Message string `json:"message"`
	Theme   string `json:"theme"`
}

type deltaEvent struct {
	Text string `json:"text"`
}

// abortWithError aborts a raw gin handler, rendering the error the same way tonic handlers do
func abortWithError(c *gin.Context, err error) {
	httpErr := httpError{}
	if errors.As(err, &httpErr) {
		_ = c.AbortWithError(httpErr.StatusCode, httpErr)
		return
	}
	_ = c.AbortWithError(http.StatusInternalServerError, err)
}

// roastStream answers a message as a stream of server sent events.
//
// "delta" events carry the reply as it is generated, a final "done" event carries the complete reply.
func (server *Server) roastStream(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := memory.ValidateSessionID(sessionID); err != nil {
		abortWithError(c, wrapSessionError(err))
		return
	}
	body := roastStreamBody{}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, wrapError(http.StatusBadRequest, err))
		return
	}
	if err := server.checkRateLimit(c); err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	started := false
	reply, err := server.services.Roaster.RoastStream(c.Request.Context(), roaster.Turn{
		SessionID:      sessionID,
		Message:        body.Message,
		Theme:          body.Theme,
		APIKeyOverride: c.GetHeader(apiKeyHeaderKey),
	}, func(delta string) error {
		started = true
		c.SSEvent("delta", deltaEvent{Text: delta})
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		if !started {
			abortWithError(c, wrapSessionError(err))
			return
		}
		log.WithField("error", err).Debug("roast stream interrupted")
		return
	}

	c.SSEvent("done", roastResponse{
		Reply:    reply.Text,
		Fallback: reply.Fallback,
	})
	c.Writer.Flush()
}
