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
	"math"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(vec []float32) float64 {
	n := float64(0)
	for _, v := range vec {
		n += float64(v) * float64(v)
	}
	return math.Sqrt(n)
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"Your code is bad", "YOUR code, is bad!", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Len(t, vecs[0], DefaultDimension)
	assert.InDelta(t, 1, norm(vecs[0]), 1e-5)
	// Case and punctuation are ignored
	assert.Equal(t, vecs[0], vecs[1])
	// Empty texts are embedded as the zero vector
	assert.Equal(t, float64(0), norm(vecs[2]))
}

func TestHashingEmbedderWordOrderMatters(t *testing.T) {
	e := NewHashingEmbedder(DefaultDimension)
	vecs, err := e.Embed(context.Background(), []string{"code review", "review code"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestRemoteEmbedder(t *testing.T) {
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.example.com/v1/embeddings",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []interface{}{
				map[string]interface{}{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				map[string]interface{}{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"usage": map[string]interface{}{"prompt_tokens": 4, "total_tokens": 4},
		}),
	)

	e, err := NewRemoteEmbedder(RemoteEmbedderOptions{
		BaseURL:    "https://api.example.com/v1/",
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		HTTPClient: httpClient,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
