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
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorpus = `# test corpus
[THEME:coding] Your code is spaghetti with extra sauce.
[THEME:gym] You skip leg day like you skip unit tests.
Your career path is a 404 page.
`

func createTestRetriever(t *testing.T, corpus string) (*Retriever, afero.Fs) {
	fs := afero.NewMemMapFs()
	if corpus != "" {
		require.NoError(t, afero.WriteFile(fs, "/data/roasts.txt", []byte(corpus), 0600))
	}
	r, err := NewRetriever(context.Background(), Options{
		DataDir:   "/data",
		ChunkSize: DefaultChunkSize,
		Fs:        fs,
	})
	require.NoError(t, err)
	return r, fs
}

func TestRetrieverEmptyCorpusUsesFallback(t *testing.T) {
	r, _ := createTestRetriever(t, "")
	assert.Equal(t, 1, r.Len())

	retrieved, err := r.Retrieve(context.Background(), "anything", DefaultTopK, "")
	assert.NoError(t, err)
	assert.Equal(t, FallbackChunk, retrieved)
}

func TestRetrieverRanksBySimilarity(t *testing.T) {
	r, _ := createTestRetriever(t, testCorpus)
	assert.Equal(t, 3, r.Len())

	chunks, err := r.Search(context.Background(), "spaghetti code", 1, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Your code is spaghetti with extra sauce.", chunks[0].Text)
	assert.Equal(t, "coding", chunks[0].Theme)
	assert.Equal(t, "roasts.txt", chunks[0].Source)
}

func TestRetrieverClampsTopK(t *testing.T) {
	r, _ := createTestRetriever(t, testCorpus)

	retrieved, err := r.Retrieve(context.Background(), "roast me", 10, "")
	require.NoError(t, err)
	assert.Len(t, strings.Split(retrieved, "\n\n"), 3)
}

func TestRetrieverPromotesTheme(t *testing.T) {
	r, _ := createTestRetriever(t, testCorpus)

	// Without a theme the closest chunk wins
	retrieved, err := r.Retrieve(context.Background(), "spaghetti code", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Your code is spaghetti with extra sauce.", retrieved)

	// With a theme, chunks of this theme come first
	retrieved, err = r.Retrieve(context.Background(), "spaghetti code", 1, "  GYM ")
	require.NoError(t, err)
	assert.Equal(t, "You skip leg day like you skip unit tests.", retrieved)

	chunks, err := r.Search(context.Background(), "spaghetti code", 3, "gym")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "gym", chunks[0].Theme)
	assert.Equal(t, "Your code is spaghetti with extra sauce.", chunks[1].Text)

	// An unknown theme doesn't change the ranking
	retrieved, err = r.Retrieve(context.Background(), "spaghetti code", 1, "cooking")
	require.NoError(t, err)
	assert.Equal(t, "Your code is spaghetti with extra sauce.", retrieved)
}

func TestRetrieverReload(t *testing.T) {
	r, fs := createTestRetriever(t, testCorpus)
	assert.Equal(t, 3, r.Len())

	require.NoError(t, afero.WriteFile(fs, "/data/more.txt", []byte("Your variable names are crimes.\n"), 0600))
	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, 4, r.Len())

	retrieved, err := r.Retrieve(context.Background(), "variable names", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Your variable names are crimes.", retrieved)
}

type failingEmbedder struct {
	HashingEmbedder
	failQueries bool
}

func (e *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.failQueries && len(texts) == 1 {
		return nil, errors.New("embedding service down")
	}
	return e.HashingEmbedder.Embed(ctx, texts)
}

func TestRetrieverEmbeddingFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/roasts.txt", []byte(testCorpus), 0600))
	embedder := &failingEmbedder{HashingEmbedder: *NewHashingEmbedder(64)}

	r, err := NewRetriever(context.Background(), Options{DataDir: "/data", Fs: fs, Embedder: embedder})
	require.NoError(t, err)

	embedder.failQueries = true
	_, err = r.Retrieve(context.Background(), "roast me", 1, "")
	assert.Error(t, err)
}

type blockingEmbedder struct {
	HashingEmbedder
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (e *blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.armed.CompareAndSwap(true, false) {
		close(e.entered)
		<-e.release
	}
	return e.HashingEmbedder.Embed(ctx, texts)
}

func TestRetrieverConcurrentReloads(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/roasts.txt", []byte(testCorpus), 0600))
	embedder := &blockingEmbedder{
		HashingEmbedder: *NewHashingEmbedder(64),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	r, err := NewRetriever(context.Background(), Options{DataDir: "/data", Fs: fs, Embedder: embedder})
	require.NoError(t, err)

	// The first reload reads the corpus then stalls while embedding it
	embedder.armed.Store(true)
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- r.Reload(context.Background())
	}()
	<-embedder.entered

	require.NoError(t, afero.WriteFile(fs, "/data/more.txt", []byte("Your variable names are crimes.\n"), 0600))
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- r.Reload(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	close(embedder.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	assert.Equal(t, 4, r.Len())
}
