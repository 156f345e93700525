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

package roastbot

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/imdario/mergo"
	"github.com/jinzhu/copier"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/httpserver"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/llm"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory/boltBackend"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory/memoryBackend"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/metrics"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/rag"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/ratelimit"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/roaster"
)

var log = logrus.WithField("component", "roastbot")

const (
	MemoryBackendMemory = "memory"
	MemoryBackendBolt   = "bolt"
)

type CorpusOptions struct {
	DataDir   string `yaml:"data_dir"`
	ChunkSize int    `yaml:"chunk_size"`
	TopK      int    `yaml:"top_k"`
	// EmbeddingModel selects a remote embeddings model, the local hashing embedder is used when empty
	EmbeddingModel string `yaml:"embedding_model"`
}

type MemoryOptions struct {
	Backend     string `yaml:"backend"`
	File        string `yaml:"file"`
	MaxTurns    int    `yaml:"max_turns"`
	MaxSessions int    `yaml:"max_sessions"`
}

type RateLimitOptions struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type Options struct {
	HTTP      httpserver.Options `yaml:"http"`
	LLM       llm.Options        `yaml:"llm"`
	APIKey    string             `yaml:"-"`
	Corpus    CorpusOptions      `yaml:"corpus"`
	Memory    MemoryOptions      `yaml:"memory"`
	RateLimit RateLimitOptions   `yaml:"rate_limit"`
}

var DefaultOptions = Options{
	HTTP:   httpserver.DefaultOptions,
	LLM:    llm.DefaultOptions,
	APIKey: "",
	Corpus: CorpusOptions{
		DataDir:        rag.DefaultOptions.DataDir,
		ChunkSize:      rag.DefaultChunkSize,
		TopK:           rag.DefaultTopK,
		EmbeddingModel: "",
	},
	Memory: MemoryOptions{
		Backend:     MemoryBackendMemory,
		File:        ".roastbot_memory.db",
		MaxTurns:    memory.DefaultMaxTurns,
		MaxSessions: memory.DefaultMaxSessions,
	},
	RateLimit: RateLimitOptions{
		Requests: 5,
		Window:   60 * time.Second,
	},
}

// ExtendDefaultOptions fills the unset corpus, memory and rate limit options with their default value.
//
// The given options are left untouched.
func ExtendDefaultOptions(options Options) (Options, error) {
	extendedOptions := Options{}
	err := copier.Copy(&extendedOptions, &options)
	if err != nil {
		return Options{}, err
	}
	// Zero values of the http and llm options are meaningful, e.g. a 0 temperature
	if err := mergo.Merge(&extendedOptions.Corpus, DefaultOptions.Corpus); err != nil {
		return Options{}, err
	}
	if err := mergo.Merge(&extendedOptions.Memory, DefaultOptions.Memory); err != nil {
		return Options{}, err
	}
	if err := mergo.Merge(&extendedOptions.RateLimit, DefaultOptions.RateLimit); err != nil {
		return Options{}, err
	}
	return extendedOptions, nil
}

// Validate checks the options, returned errors name the faulty configuration key
func (options *Options) Validate() error {
	if options.HTTP.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max_message_size %d, expecting a strictly positive value", options.HTTP.MaxMessageSize)
	}
	if options.HTTP.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid max_upload_size %d, expecting a strictly positive value", options.HTTP.MaxUploadSize)
	}
	for _, trustedProxy := range options.HTTP.TrustedProxies {
		if net.ParseIP(trustedProxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(trustedProxy); err != nil {
			return fmt.Errorf("invalid trusted_proxies entry %q, expecting an ip address or a cidr", trustedProxy)
		}
	}
	if options.LLM.Temperature < 0 || options.LLM.Temperature > 2 {
		return fmt.Errorf("invalid temperature %v, expecting a value in [0, 2]", options.LLM.Temperature)
	}
	if options.LLM.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens %d, expecting a strictly positive value", options.LLM.MaxTokens)
	}
	if options.LLM.Model == "" {
		return fmt.Errorf("invalid model, expecting a non empty model name")
	}
	if options.Corpus.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size %d, expecting a strictly positive value", options.Corpus.ChunkSize)
	}
	if options.Corpus.TopK <= 0 {
		return fmt.Errorf("invalid top_k %d, expecting a strictly positive value", options.Corpus.TopK)
	}
	switch options.Memory.Backend {
	case MemoryBackendMemory, MemoryBackendBolt:
	default:
		return fmt.Errorf(
			"invalid memory_backend %q, expecting one of [%s %s]",
			options.Memory.Backend,
			MemoryBackendMemory,
			MemoryBackendBolt,
		)
	}
	if options.Memory.MaxTurns <= 0 {
		return fmt.Errorf("invalid max_turns %d, expecting a strictly positive value", options.Memory.MaxTurns)
	}
	if options.Memory.MaxSessions <= 0 {
		return fmt.Errorf("invalid max_sessions %d, expecting a strictly positive value", options.Memory.MaxSessions)
	}
	if options.RateLimit.Requests <= 0 {
		return fmt.Errorf("invalid rate_limit_requests %d, expecting a strictly positive value", options.RateLimit.Requests)
	}
	if options.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate_limit_window %s, expecting a strictly positive duration", options.RateLimit.Window)
	}
	return nil
}

// CreateRetriever builds the retriever and the index of the corpus
func CreateRetriever(ctx context.Context, options Options, fs afero.Fs) (*rag.Retriever, error) {
	var embedder rag.Embedder
	if options.Corpus.EmbeddingModel != "" {
		apiKey, ok := llm.ValidateAPIKey(options.APIKey)
		if !ok {
			return nil, &llm.MissingAPIKeyError{}
		}
		remoteEmbedder, err := rag.NewRemoteEmbedder(rag.RemoteEmbedderOptions{
			BaseURL:    options.LLM.BaseURL,
			APIKey:     apiKey,
			Model:      options.Corpus.EmbeddingModel,
			HTTPClient: options.LLM.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
		embedder = remoteEmbedder
	}

	return rag.NewRetriever(ctx, rag.Options{
		DataDir:   options.Corpus.DataDir,
		ChunkSize: options.Corpus.ChunkSize,
		Fs:        fs,
		Embedder:  embedder,
	})
}

// CreateMemoryBackend builds the configured conversation memory backend
func CreateMemoryBackend(options MemoryOptions) (memory.Backend, error) {
	switch options.Backend {
	case MemoryBackendBolt:
		filePath, err := homedir.Expand(options.File)
		if err != nil {
			return nil, fmt.Errorf("invalid memory_file %q (%w)", options.File, err)
		}
		return boltBackend.CreateBoltBackend(filePath, options.MaxTurns)
	case MemoryBackendMemory:
		return memoryBackend.CreateMemoryBackend(options.MaxTurns, options.MaxSessions)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", options.Backend)
	}
}

func Run(ctx context.Context, options Options) error {
	options, err := ExtendDefaultOptions(options)
	if err != nil {
		return err
	}
	err = options.Validate()
	if err != nil {
		return err
	}

	m := metrics.New()

	// Build the retriever
	retriever, err := CreateRetriever(ctx, options, afero.NewOsFs())
	if err != nil {
		return err
	}
	m.SetCorpusChunks(retriever.Len())
	log.WithFields(logrus.Fields{
		"data_dir": retriever.DataDir(),
		"chunks":   retriever.Len(),
	}).Info("roast corpus indexed")

	// Build the memory backend
	backend, err := CreateMemoryBackend(options.Memory)
	if err != nil {
		return err
	}
	defer backend.Destroy()

	limiter, err := ratelimit.New(options.RateLimit.Requests, options.RateLimit.Window)
	if err != nil {
		return err
	}

	pool, err := llm.NewPool(options.APIKey, options.LLM, llm.DefaultPoolSize)
	if err != nil {
		return err
	}

	roasterOptions := roaster.DefaultOptions
	roasterOptions.TopK = options.Corpus.TopK
	r := roaster.New(retriever, pool, backend, m, roasterOptions)

	// Build the http server
	httpServer, err := httpserver.New(options.HTTP, httpserver.Services{
		Roaster:   r,
		Memory:    backend,
		Limiter:   limiter,
		Retriever: retriever,
		LLM:       pool,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	// Start the http server
	group.Go(func() error {
		log.WithFields(logrus.Fields{
			"address": options.HTTP.Address,
			"port":    options.HTTP.Port,
			"model":   options.LLM.Model,
		}).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("unexpected error while serving http routes: %v", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("Gracefully stopping")

		stopGroup, stopCtx := errgroup.WithContext(context.Background())
		stopGroup.Go(func() error {
			log.Debug("Stopping the http server")
			stopCtx, cancel := context.WithTimeout(stopCtx, 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(stopCtx)
		})

		err := stopGroup.Wait()
		if err != nil {
			log.WithField("error", err).Warning("Error while stopping")
		}
		return ctx.Err()
	})

	return group.Wait()
}
