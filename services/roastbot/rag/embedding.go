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

package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openlyinc/pointy"
)

// DefaultDimension matches the dimension of the usual sentence embedding models
const DefaultDimension = 384

// Embedder computes the vector representation of texts
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// HashingEmbedder embeds texts locally by hashing their words and pairs of consecutive words
type HashingEmbedder struct {
	dimension int
}

func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashingEmbedder{dimension: dimension}
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (e *HashingEmbedder) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dimension))
	// The top bit decides the sign to limit the bias introduced by collisions
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := tokenize(text)
	for i, token := range tokens {
		e.addFeature(vec, token, 1)
		if i > 0 {
			e.addFeature(vec, tokens[i-1]+" "+token, 0.5)
		}
	}
	normalize(vec)
	return vec
}

func (e *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = e.embed(text)
	}
	return vecs, nil
}

func normalize(vec []float32) {
	norm := float64(0)
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

type RemoteEmbedderOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// RemoteEmbedder computes embeddings using an OpenAI compatible embeddings endpoint
type RemoteEmbedder struct {
	client    *azopenai.Client
	model     string
	dimension atomic.Int64
}

func NewRemoteEmbedder(options RemoteEmbedderOptions) (*RemoteEmbedder, error) {
	clientOptions := &azopenai.ClientOptions{}
	if options.HTTPClient != nil {
		clientOptions.Transport = options.HTTPClient
	}
	client, err := azopenai.NewClientForOpenAI(
		strings.TrimSuffix(options.BaseURL, "/"),
		azcore.NewKeyCredential(options.APIKey),
		clientOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create the embeddings client for %q (%w)", options.BaseURL, err)
	}
	return &RemoteEmbedder{
		client: client,
		model:  options.Model,
	}, nil
}

// Dimension is only known after the first successful call to Embed
func (e *RemoteEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := e.client.GetEmbeddings(ctx, azopenai.EmbeddingsOptions{
		Input:          texts,
		DeploymentName: pointy.String(e.model),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to compute embeddings with model %q (%w)", e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, received %d", len(texts), len(resp.Data))
	}
	vecs := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := i
		if item.Index != nil {
			idx = int(*item.Index)
		}
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("unexpected embedding index %d", idx)
		}
		vecs[idx] = item.Embedding
	}
	e.dimension.Store(int64(len(vecs[0])))
	return vecs, nil
}
