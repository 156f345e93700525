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
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var log = logrus.WithField("component", "rag")

const DefaultTopK = 3

// themeCandidatesFactor is the number of candidates fetched per result when re-ranking by theme
const themeCandidatesFactor = 4

type Options struct {
	DataDir   string
	ChunkSize int
	Fs        afero.Fs
	Embedder  Embedder
}

var DefaultOptions = Options{
	DataDir:   "data",
	ChunkSize: DefaultChunkSize,
	Fs:        nil,
	Embedder:  nil,
}

type corpusIndex struct {
	chunks []Chunk
	index  *FlatIndex
}

// Retriever finds the chunks of the corpus the most relevant to a query
type Retriever struct {
	options Options
	// reloadMutex serializes the reloads, the last one to complete is the last one to have read the corpus
	reloadMutex sync.Mutex
	mutex       sync.RWMutex
	current     *corpusIndex
}

// NewRetriever creates a retriever and builds the index of the corpus found in the data directory
func NewRetriever(ctx context.Context, options Options) (*Retriever, error) {
	if options.Fs == nil {
		options.Fs = afero.NewOsFs()
	}
	if options.Embedder == nil {
		options.Embedder = NewHashingEmbedder(DefaultDimension)
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	r := &Retriever{
		options: options,
	}
	err := r.Reload(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Retriever) buildIndex(ctx context.Context) (*corpusIndex, error) {
	chunks, err := LoadCorpus(r.options.Fs, r.options.DataDir, r.options.ChunkSize)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.WithField("data_dir", r.options.DataDir).Warn("empty corpus, using the default roast")
		chunks = []Chunk{{Text: FallbackChunk}}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := r.options.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("unable to embed the corpus (%w)", err)
	}
	index := NewFlatIndex(r.options.Embedder.Dimension())
	err = index.Add(vectors...)
	if err != nil {
		return nil, err
	}
	return &corpusIndex{chunks: chunks, index: index}, nil
}

// Reload rebuilds the index from the data directory, the previous index is served until the new one is ready
func (r *Retriever) Reload(ctx context.Context) error {
	r.reloadMutex.Lock()
	defer r.reloadMutex.Unlock()

	current, err := r.buildIndex(ctx)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	r.current = current
	r.mutex.Unlock()

	log.WithFields(logrus.Fields{
		"data_dir": r.options.DataDir,
		"chunks":   len(current.chunks),
	}).Info("corpus indexed")
	return nil
}

func (r *Retriever) snapshot() *corpusIndex {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.current
}

// Len returns the number of indexed chunks
func (r *Retriever) Len() int {
	return len(r.snapshot().chunks)
}

func (r *Retriever) DataDir() string {
	return r.options.DataDir
}

func (r *Retriever) Fs() afero.Fs {
	return r.options.Fs
}

// RetrievedChunk is a chunk returned by Search with its distance to the query
type RetrievedChunk struct {
	Chunk
	Distance float32
}

// Search returns the topK chunks the closest to the query.
//
// When a theme is provided, a wider pool of candidates is fetched and the chunks of this theme are moved first.
func (r *Retriever) Search(ctx context.Context, query string, topK int, theme string) ([]RetrievedChunk, error) {
	current := r.snapshot()
	if topK <= 0 {
		topK = DefaultTopK
	}
	theme = strings.ToLower(strings.TrimSpace(theme))

	fetchK := topK
	if theme != "" {
		fetchK = topK * themeCandidatesFactor
	}
	if fetchK > len(current.chunks) {
		fetchK = len(current.chunks)
	}

	vectors, err := r.options.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("unable to embed the query (%w)", err)
	}
	results, err := current.index.Search(vectors[0], fetchK)
	if err != nil {
		return nil, err
	}

	candidates := make([]RetrievedChunk, 0, len(results))
	for _, result := range results {
		candidates = append(candidates, RetrievedChunk{
			Chunk:    current.chunks[result.Index],
			Distance: result.Distance,
		})
	}

	if theme != "" {
		themed := []RetrievedChunk{}
		others := []RetrievedChunk{}
		for _, candidate := range candidates {
			if candidate.Theme == theme {
				themed = append(themed, candidate)
			} else {
				others = append(others, candidate)
			}
		}
		candidates = append(themed, others...)
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// Retrieve returns the text of the topK chunks the closest to the query, separated by blank lines
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, theme string) (string, error) {
	chunks, err := r.Search(ctx, query, topK, theme)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	return strings.Join(texts, "\n\n"), nil
}
