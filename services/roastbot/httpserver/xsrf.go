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
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gdg-charusat/super-roast-bot/version"
)

const (
	xsrfCookieName = "_xsrf"
	xsrfHeaderKey  = "X-Xsrf-Token"
	xsrfTokenTTL   = 24 * time.Hour
)

var XSRFTokenIssuer = fmt.Sprintf("Super RoastBot v%s", version.Version)

func MakeAndSerializeXSRFToken(secret string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(xsrfTokenTTL)),
		Issuer:    XSRFTokenIssuer,
	})
	return token.SignedString([]byte(secret))
}

func VerifyXSRFToken(tokenString string, secret string) error {
	_, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		issuer, err := token.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}

		if issuer != XSRFTokenIssuer {
			return nil, fmt.Errorf("Unexpected token issuer: %v", issuer)
		}

		return []byte(secret), nil
	})
	return err
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// xsrfMiddleware implements the double submit cookie pattern.
//
// Safe requests receive a signed token in the "_xsrf" cookie, unsafe requests need to send it back in the
// "X-Xsrf-Token" header.
func xsrfMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieToken, cookieErr := c.Cookie(xsrfCookieName)
		hasValidCookie := cookieErr == nil && VerifyXSRFToken(cookieToken, secret) == nil

		if isSafeMethod(c.Request.Method) {
			if !hasValidCookie {
				token, err := MakeAndSerializeXSRFToken(secret, time.Now())
				if err != nil {
					_ = c.AbortWithError(http.StatusInternalServerError, err)
					return
				}
				c.SetSameSite(http.SameSiteStrictMode)
				c.SetCookie(xsrfCookieName, token, int(xsrfTokenTTL.Seconds()), "/", "", false, false)
			}
			c.Next()
			return
		}

		if !hasValidCookie {
			_ = c.AbortWithError(http.StatusForbidden, errors.New("missing or invalid xsrf cookie"))
			return
		}
		headerToken := c.GetHeader(xsrfHeaderKey)
		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
			_ = c.AbortWithError(
				http.StatusForbidden,
				fmt.Errorf("header [%s] doesn't match the xsrf cookie", xsrfHeaderKey),
			)
			return
		}
		c.Next()
	}
}
