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

package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
)

const (
	PortKey              = "port"
	AddressKey           = "address"
	APIKeyKey            = "api_key"
	BaseURLKey           = "base_url"
	ModelKey             = "model"
	TemperatureKey       = "temperature"
	MaxTokensKey         = "max_tokens"
	DataDirKey           = "data_dir"
	ChunkSizeKey         = "chunk_size"
	TopKKey              = "top_k"
	EmbeddingModelKey    = "embedding_model"
	MemoryBackendKey     = "memory_backend"
	MemoryFileKey        = "memory_file"
	MaxTurnsKey          = "max_turns"
	MaxSessionsKey       = "max_sessions"
	RateLimitRequestsKey = "rate_limit_requests"
	RateLimitWindowKey   = "rate_limit_window"
	MaxUploadSizeKey     = "max_upload_size"
	MaxMessageSizeKey    = "max_message_size"
	XSRFProtectionKey    = "xsrf_protection"
	TrustedProxiesKey    = "trusted_proxies"
)

const megabyte = 1024 * 1024

// PopulateRoastbotOptionsFlags defines the flags, environment variables and default values of the roastbot options
func PopulateRoastbotOptionsFlags(cmd *cobra.Command, viper *viper.Viper, defaultValues roastbot.Options) {
	viper.SetDefault(PortKey, defaultValues.HTTP.Port)
	_ = viper.BindEnv(PortKey, "ROASTBOT_PORT")
	cmd.Flags().Uint(
		PortKey,
		viper.GetUint(PortKey),
		"The http port to listen on",
	)

	viper.SetDefault(AddressKey, defaultValues.HTTP.Address)
	_ = viper.BindEnv(AddressKey, "ROASTBOT_ADDRESS")
	cmd.Flags().String(
		AddressKey,
		viper.GetString(AddressKey),
		"The address to bind the http server to",
	)

	viper.SetDefault(APIKeyKey, defaultValues.APIKey)
	_ = viper.BindEnv(APIKeyKey, "GROQ_KEY", "GROQ_API_KEY")
	cmd.Flags().String(
		APIKeyKey,
		viper.GetString(APIKeyKey),
		"API key of the LLM provider, requests can provide their own",
	)

	viper.SetDefault(BaseURLKey, defaultValues.LLM.BaseURL)
	_ = viper.BindEnv(BaseURLKey, "ROASTBOT_LLM_BASE_URL")
	cmd.Flags().String(
		BaseURLKey,
		viper.GetString(BaseURLKey),
		"Base URL of the OpenAI compatible LLM API",
	)

	viper.SetDefault(ModelKey, defaultValues.LLM.Model)
	_ = viper.BindEnv(ModelKey, "MODEL_NAME")
	cmd.Flags().String(
		ModelKey,
		viper.GetString(ModelKey),
		"LLM model generating the roasts",
	)

	viper.SetDefault(TemperatureKey, defaultValues.LLM.Temperature)
	_ = viper.BindEnv(TemperatureKey, "TEMPERATURE")
	cmd.Flags().Float32(
		TemperatureKey,
		float32(viper.GetFloat64(TemperatureKey)),
		"LLM sampling temperature, in [0, 2]",
	)

	viper.SetDefault(MaxTokensKey, defaultValues.LLM.MaxTokens)
	_ = viper.BindEnv(MaxTokensKey, "MAX_TOKENS")
	cmd.Flags().Int32(
		MaxTokensKey,
		viper.GetInt32(MaxTokensKey),
		"Maximum number of tokens of a roast",
	)

	viper.SetDefault(DataDirKey, defaultValues.Corpus.DataDir)
	_ = viper.BindEnv(DataDirKey, "ROASTBOT_DATA_DIR")
	cmd.Flags().String(
		DataDirKey,
		viper.GetString(DataDirKey),
		"Directory of the .txt and .pdf roast corpus files",
	)

	viper.SetDefault(ChunkSizeKey, defaultValues.Corpus.ChunkSize)
	_ = viper.BindEnv(ChunkSizeKey, "ROASTBOT_CHUNK_SIZE")
	cmd.Flags().Int(
		ChunkSizeKey,
		viper.GetInt(ChunkSizeKey),
		"Maximum size, in characters, of a corpus chunk",
	)

	viper.SetDefault(TopKKey, defaultValues.Corpus.TopK)
	_ = viper.BindEnv(TopKKey, "ROASTBOT_TOP_K")
	cmd.Flags().Int(
		TopKKey,
		viper.GetInt(TopKKey),
		"Number of corpus chunks included in the prompt",
	)

	viper.SetDefault(EmbeddingModelKey, defaultValues.Corpus.EmbeddingModel)
	_ = viper.BindEnv(EmbeddingModelKey, "ROASTBOT_EMBEDDING_MODEL")
	cmd.Flags().String(
		EmbeddingModelKey,
		viper.GetString(EmbeddingModelKey),
		"Remote embeddings model, a local hashing embedder is used if empty",
	)

	viper.SetDefault(MemoryBackendKey, defaultValues.Memory.Backend)
	_ = viper.BindEnv(MemoryBackendKey, "ROASTBOT_MEMORY_BACKEND")
	cmd.Flags().String(
		MemoryBackendKey,
		viper.GetString(MemoryBackendKey),
		fmt.Sprintf("Conversation memory backend, one of [%s %s]", roastbot.MemoryBackendMemory, roastbot.MemoryBackendBolt),
	)

	viper.SetDefault(MemoryFileKey, defaultValues.Memory.File)
	_ = viper.BindEnv(MemoryFileKey, "ROASTBOT_MEMORY_FILE")
	cmd.Flags().String(
		MemoryFileKey,
		viper.GetString(MemoryFileKey),
		"Conversation memory file, used by the bolt backend",
	)

	viper.SetDefault(MaxTurnsKey, defaultValues.Memory.MaxTurns)
	_ = viper.BindEnv(MaxTurnsKey, "ROASTBOT_MAX_TURNS")
	cmd.Flags().Int(
		MaxTurnsKey,
		viper.GetInt(MaxTurnsKey),
		"Number of exchanges remembered per session",
	)

	viper.SetDefault(MaxSessionsKey, defaultValues.Memory.MaxSessions)
	_ = viper.BindEnv(MaxSessionsKey, "ROASTBOT_MAX_SESSIONS")
	cmd.Flags().Int(
		MaxSessionsKey,
		viper.GetInt(MaxSessionsKey),
		"Number of sessions kept by the memory backend",
	)

	viper.SetDefault(RateLimitRequestsKey, defaultValues.RateLimit.Requests)
	_ = viper.BindEnv(RateLimitRequestsKey, "ROASTBOT_RATE_LIMIT_REQUESTS")
	cmd.Flags().Int(
		RateLimitRequestsKey,
		viper.GetInt(RateLimitRequestsKey),
		"Maximum number of roasts per client during the rate limit window",
	)

	viper.SetDefault(RateLimitWindowKey, defaultValues.RateLimit.Window.String())
	_ = viper.BindEnv(RateLimitWindowKey, "ROASTBOT_RATE_LIMIT_WINDOW")
	cmd.Flags().String(
		RateLimitWindowKey,
		viper.GetString(RateLimitWindowKey),
		"Duration of the rate limit window, e.g. \"60s\", a bare number is a number of seconds",
	)

	viper.SetDefault(MaxUploadSizeKey, defaultValues.HTTP.MaxUploadSize/megabyte)
	_ = viper.BindEnv(MaxUploadSizeKey, "STREAMLIT_SERVER_MAX_UPLOAD_SIZE", "STREAMLIT_SERVER_MAXUPLOADSIZE")
	cmd.Flags().Int64(
		MaxUploadSizeKey,
		viper.GetInt64(MaxUploadSizeKey),
		"Maximum size, in MB, of an uploaded corpus file",
	)

	viper.SetDefault(MaxMessageSizeKey, defaultValues.HTTP.MaxMessageSize/megabyte)
	_ = viper.BindEnv(MaxMessageSizeKey, "STREAMLIT_SERVER_MAXMESSAGESIZE")
	cmd.Flags().Int64(
		MaxMessageSizeKey,
		viper.GetInt64(MaxMessageSizeKey),
		"Maximum size, in MB, of a request",
	)

	viper.SetDefault(XSRFProtectionKey, defaultValues.HTTP.XSRFProtection)
	_ = viper.BindEnv(XSRFProtectionKey, "STREAMLIT_SERVER_ENABLE_XSRF_PROTECTION")
	cmd.Flags().Bool(
		XSRFProtectionKey,
		viper.GetBool(XSRFProtectionKey),
		"Require the xsrf token on requests modifying the state",
	)

	viper.SetDefault(TrustedProxiesKey, defaultValues.HTTP.TrustedProxies)
	_ = viper.BindEnv(TrustedProxiesKey, "ROASTBOT_TRUSTED_PROXIES")
	cmd.Flags().StringSlice(
		TrustedProxiesKey,
		viper.GetStringSlice(TrustedProxiesKey),
		"Addresses or CIDRs of the reverse proxies allowed to forward the client address",
	)
}

// ParseWindow parses a duration, a bare number being a number of seconds
func ParseWindow(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}

func GetRoastbotOptions(viper *viper.Viper) (roastbot.Options, error) {
	options := roastbot.DefaultOptions

	options.HTTP.Port = viper.GetUint(PortKey)
	options.HTTP.Address = viper.GetString(AddressKey)
	options.HTTP.MaxUploadSize = viper.GetInt64(MaxUploadSizeKey) * megabyte
	options.HTTP.MaxMessageSize = viper.GetInt64(MaxMessageSizeKey) * megabyte
	options.HTTP.XSRFProtection = viper.GetBool(XSRFProtectionKey)
	options.HTTP.TrustedProxies = viper.GetStringSlice(TrustedProxiesKey)

	options.APIKey = viper.GetString(APIKeyKey)
	options.LLM.BaseURL = viper.GetString(BaseURLKey)
	options.LLM.Model = viper.GetString(ModelKey)
	options.LLM.Temperature = float32(viper.GetFloat64(TemperatureKey))
	options.LLM.MaxTokens = viper.GetInt32(MaxTokensKey)

	options.Corpus.DataDir = viper.GetString(DataDirKey)
	options.Corpus.ChunkSize = viper.GetInt(ChunkSizeKey)
	options.Corpus.TopK = viper.GetInt(TopKKey)
	options.Corpus.EmbeddingModel = viper.GetString(EmbeddingModelKey)

	options.Memory.Backend = viper.GetString(MemoryBackendKey)
	options.Memory.File = viper.GetString(MemoryFileKey)
	options.Memory.MaxTurns = viper.GetInt(MaxTurnsKey)
	options.Memory.MaxSessions = viper.GetInt(MaxSessionsKey)

	options.RateLimit.Requests = viper.GetInt(RateLimitRequestsKey)
	window, err := ParseWindow(viper.GetString(RateLimitWindowKey))
	if err != nil {
		return roastbot.Options{}, fmt.Errorf(
			"invalid %s %q (%w)",
			RateLimitWindowKey,
			viper.GetString(RateLimitWindowKey),
			err,
		)
	}
	options.RateLimit.Window = window

	return options, options.Validate()
}
