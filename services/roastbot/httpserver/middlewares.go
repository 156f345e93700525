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
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/ratelimit"
)

// ginLoggerMiddleware logs every request once it is handled, roast requests carry their session id
func ginLoggerMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	latency := time.Since(start)

	statusCode := c.Writer.Status()
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}

	entry := log.WithFields(logrus.Fields{
		"status":     statusCode,
		"latency_ms": int(math.Ceil(float64(latency.Nanoseconds()) / 1000000.0)),
		"client_ip":  c.ClientIP(),
		"size":       maxInt(c.Writer.Size(), 0),
	})
	if sessionID := c.Param("session_id"); sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	if limitErr := findLimitExceededError(c); limitErr != nil {
		entry = entry.WithField("retry_after", limitErr.WaitSeconds())
	}

	switch {
	case statusCode >= http.StatusInternalServerError:
		entry.Errorf("[%s] [%s] - 5XX internal error", c.Request.Method, route)
	case statusCode >= http.StatusBadRequest:
		entry.Warnf("[%s] [%s] - 4XX request error", c.Request.Method, route)
	default:
		entry.Debugf("[%s] [%s]", c.Request.Method, route)
	}
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}

func findLimitExceededError(c *gin.Context) *ratelimit.LimitExceededError {
	for _, err := range c.Errors {
		limitErr := &ratelimit.LimitExceededError{}
		if errors.As(err.Err, &limitErr) {
			return limitErr
		}
	}
	return nil
}

func ginErrorHandlerMiddleware(c *gin.Context) {
	c.Next()

	statusCode := c.Writer.Status()
	log := log.WithField("status", statusCode)

	for errIndex, err := range c.Errors {
		if statusCode >= http.StatusInternalServerError {
			log.Errorf("Error #%02d - %s", errIndex+1, err)
		} else if statusCode >= http.StatusBadRequest {
			log.Debugf("Error #%02d - %s", errIndex+1, err)
		}
	}

	// Errors returned by tonic handlers are already rendered
	if len(c.Errors) > 0 && c.Writer.Size() <= 0 {
		ret := gin.H{
			"message": c.Errors.Last().Error(),
		}
		if len(c.Errors) > 1 {
			ret["errors"] = c.Errors
		}

		c.JSON(statusCode, ret)
	}
}

// bodyLimitMiddleware caps the size of the request bodies, routes listed in "overrides" use their own limit.
//
// Requests announcing a larger body are rejected right away, others are cut when reading past the limit.
func bodyLimitMiddleware(limit int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		routeLimit := limit
		if override, ok := overrides[c.FullPath()]; ok {
			routeLimit = override
		}
		if routeLimit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > routeLimit {
			_ = c.AbortWithError(http.StatusRequestEntityTooLarge, httpError{
				StatusCode: http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf(
					"request body is %s, the limit is %s",
					humanize.Bytes(uint64(c.Request.ContentLength)),
					humanize.Bytes(uint64(routeLimit)),
				),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, routeLimit)
		c.Next()
	}
}
