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
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/llm"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/metrics"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/rag"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/ratelimit"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/roaster"
	"github.com/gdg-charusat/super-roast-bot/version"
)

var log = logrus.WithField("component", "httpserver")

const serviceName = "Super RoastBot"

var infos = openapi.Info{
	Title: serviceName,
	Description: "Super RoastBot is a chat bot that roasts you, it implements a JSON HTTP API that can be easily used " +
		"from a web application.\n" +
		"\n" +
		"The API is composed of three groups of routes:\n" +
		"- [Sessions](#tag/Sessions)\n" +
		"- [Corpus](#tag/Corpus)\n" +
		"- [Service](#tag/Service)\n",
	Version: version.Version,
}

const (
	corpusRoute      = "/corpus"
	roastStreamRoute = "/sessions/:session_id/roast/stream"
	apiKeyHeaderKey  = "X-Groq-Api-Key"
)

type Options struct {
	Address string `yaml:"address"`
	Port    uint   `yaml:"port"`
	// MaxMessageSize is the maximum size, in bytes, of a request body
	MaxMessageSize int64 `yaml:"max_message_size"`
	// MaxUploadSize is the maximum size, in bytes, of an uploaded corpus file
	MaxUploadSize  int64 `yaml:"max_upload_size"`
	XSRFProtection bool  `yaml:"xsrf_protection"`
	// XSRFSecret signs the xsrf tokens, a random secret is generated when empty
	XSRFSecret string `yaml:"-"`
	// TrustedProxies lists the addresses or CIDRs of the reverse proxies allowed to set X-Forwarded-For,
	// when empty the client address is always the address of the peer
	TrustedProxies []string `yaml:"trusted_proxies"`
}

var DefaultOptions = Options{
	Address:        "0.0.0.0",
	Port:           8501,
	MaxMessageSize: 200 * 1024 * 1024,
	MaxUploadSize:  200 * 1024 * 1024,
	XSRFProtection: true,
	XSRFSecret:     "",
	TrustedProxies: nil,
}

// Services are the components the routes rely on
type Services struct {
	Roaster   *roaster.Roaster
	Memory    memory.Backend
	Limiter   *ratelimit.Limiter
	Retriever *rag.Retriever
	LLM       *llm.Pool
	Metrics   *metrics.Metrics
}

type Server struct {
	http.Server
	options  Options
	services Services

	gin  *gin.Engine
	fizz *fizz.Fizz
}

func New(options Options, services Services) (*Server, error) {
	// Debug mode can be helpful during development
	gin.SetMode(gin.ReleaseMode)

	tonic.SetErrorHook(tonicErrorHook)

	ginEngine := gin.New()
	// Client addresses identify the callers for rate limiting
	if err := ginEngine.SetTrustedProxies(options.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted_proxies %v (%w)", options.TrustedProxies, err)
	}
	fizzEngine := fizz.NewFromEngine(ginEngine)

	server := &Server{
		Server: http.Server{
			Addr:    net.JoinHostPort(options.Address, strconv.FormatUint(uint64(options.Port), 10)),
			Handler: fizzEngine,
		},
		options:  options,
		services: services,
		gin:      ginEngine,
		fizz:     fizzEngine,
	}

	server.gin.HandleMethodNotAllowed = true

	// Allows all origins
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowCredentials = false
	corsConfig.AddAllowHeaders(apiKeyHeaderKey, xsrfHeaderKey)
	corsConfig.AddExposeHeaders("Retry-After")

	server.fizz.Use(cors.New(corsConfig))

	// Use a custom error handler
	server.fizz.Use(ginErrorHandlerMiddleware)

	// Use the custom logger middleware
	server.fizz.Use(ginLoggerMiddleware)

	// Recovery middleware recovers from any panics and writes a 500 if there was one.
	server.fizz.Use(gin.Recovery())

	server.fizz.Use(bodyLimitMiddleware(options.MaxMessageSize, map[string]int64{
		corpusRoute: options.MaxUploadSize,
	}))

	if options.XSRFProtection {
		secret := options.XSRFSecret
		if secret == "" {
			secret = uuid.NewString()
		}
		server.fizz.Use(xsrfMiddleware(secret))
	}

	server.fizz.GET("/", []fizz.OperationOption{
		fizz.Summary("Retrieve information about this API"),
	}, tonic.Handler(server.getInfo, http.StatusOK))

	server.fizz.GET("/openapi.json", []fizz.OperationOption{
		fizz.Summary("Retrieve the open api specification"),
		fizz.Response("500", "Bad server configuration or state", httpError{}, nil, nil),
	}, server.fizz.OpenAPI(&infos, "json"))

	serviceGroup := server.fizz.Group("", "Service", "Health, configuration and monitoring of the service.")
	serviceGroup.GET("/health", []fizz.OperationOption{
		fizz.Summary("Check the health of the service"),
	}, tonic.Handler(server.getHealth, http.StatusOK))
	serviceGroup.GET("/config", []fizz.OperationOption{
		fizz.Summary("Retrieve the LLM configuration"),
	}, tonic.Handler(server.getConfig, http.StatusOK))

	sessionsGroup := server.fizz.Group("/sessions", "Sessions", "Chat with the bot and manage the conversations.")
	sessionsGroup.POST("", []fizz.OperationOption{
		fizz.Summary("Create a session"),
	}, tonic.Handler(server.createSession, http.StatusCreated))
	sessionsGroup.GET("/:session_id", []fizz.OperationOption{
		fizz.Summary("Retrieve the remembered conversation of a session"),
		fizz.Response("400", "Invalid session identifier", httpError{}, nil, nil),
		fizz.Response("500", "Bad server configuration or state", httpError{}, nil, nil),
	}, tonic.Handler(server.getSession, http.StatusOK))
	sessionsGroup.DELETE("/:session_id", []fizz.OperationOption{
		fizz.Summary("Clear the conversation of a session"),
		fizz.Response("400", "Invalid session identifier", httpError{}, nil, nil),
		fizz.Response("500", "Bad server configuration or state", httpError{}, nil, nil),
	}, tonic.Handler(server.clearSession, http.StatusOK))
	sessionsGroup.POST("/:session_id/roast", []fizz.OperationOption{
		fizz.Summary("Send a message and get roasted"),
		fizz.Description("Failures to generate a roast result in a fallback reply, not in an error.\n" +
			"\n" +
			"The LLM API key can be provided by the caller in the `" + apiKeyHeaderKey + "` header."),
		fizz.Response("400", "Invalid session identifier", httpError{}, nil, nil),
		fizz.Response("429", "Too many requests, the Retry-After header gives the wait in seconds", httpError{}, nil, nil),
	}, tonic.Handler(server.roast, http.StatusOK))

	// Routes that don't answer JSON are not documented
	ginEngine.GET("/_stcore/health", server.getLiveness)
	ginEngine.GET("/metrics", gin.WrapH(services.Metrics.Handler()))
	ginEngine.POST(roastStreamRoute, server.roastStream)
	ginEngine.POST(corpusRoute, server.uploadCorpus)

	ginEngine.NoRoute(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusNotFound, fmt.Errorf("not found"))
	})

	ginEngine.NoMethod(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	return server, nil
}

type response struct {
	Message string `json:"message" description:"Human-readable response description"`
}

type infoResponse struct {
	response
	Version     string `json:"version" description:"Super RoastBot Version"`
	VersionHash string `json:"version_hash"`
}

func (server *Server) getInfo(*gin.Context) (infoResponse, error) {
	return infoResponse{
		response: response{
			Message: "This is Super RoastBot, prepare to get roasted",
		},
		Version:     version.Version,
		VersionHash: version.Hash,
	}, nil
}

type healthResponse struct {
	response
	Status  string `json:"status" description:"Health status"`
	Service string `json:"service" description:"Service name"`
}

func (server *Server) getHealth(*gin.Context) (healthResponse, error) {
	return healthResponse{
		response: response{
			Message: "Service is running and available",
		},
		Status:  "healthy",
		Service: serviceName,
	}, nil
}

func (server *Server) getLiveness(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type configResponse struct {
	Model           string  `json:"model" description:"LLM model"`
	Temperature     float32 `json:"temperature" description:"LLM sampling temperature"`
	MaxTokens       int32   `json:"max_tokens" description:"Maximum number of generated tokens"`
	HasAPIKey       bool    `json:"has_api_key" description:"Whether an API key is configured server side"`
	RateLimit       int     `json:"rate_limit" description:"Maximum number of roasts per window"`
	RateLimitWindow float64 `json:"rate_limit_window" description:"Duration of the rate limit window, in seconds"`
	CorpusChunks    int     `json:"corpus_chunks" description:"Number of chunks in the retrieval index"`
}

func (server *Server) getConfig(*gin.Context) (configResponse, error) {
	llmOptions := server.services.LLM.Options()
	return configResponse{
		Model:           llmOptions.Model,
		Temperature:     llmOptions.Temperature,
		MaxTokens:       llmOptions.MaxTokens,
		HasAPIKey:       server.services.LLM.HasDefaultAPIKey(),
		RateLimit:       server.services.Limiter.MaxRequests(),
		RateLimitWindow: server.services.Limiter.Window().Seconds(),
		CorpusChunks:    server.services.Retriever.Len(),
	}, nil
}
