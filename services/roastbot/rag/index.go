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
	"fmt"
	"sort"
)

// FlatIndex performs exact nearest neighbors search using the squared euclidean distance
type FlatIndex struct {
	dimension int
	vectors   [][]float32
}

func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{
		dimension: dimension,
		vectors:   [][]float32{},
	}
}

func (idx *FlatIndex) Len() int {
	return len(idx.vectors)
}

func (idx *FlatIndex) Dimension() int {
	return idx.dimension
}

func (idx *FlatIndex) Add(vectors ...[]float32) error {
	for _, vec := range vectors {
		if idx.dimension == 0 {
			idx.dimension = len(vec)
		}
		if len(vec) != idx.dimension {
			return fmt.Errorf("unexpected vector dimension %d, index dimension is %d", len(vec), idx.dimension)
		}
		idx.vectors = append(idx.vectors, vec)
	}
	return nil
}

// SearchResult is a position in the index and its distance to the query
type SearchResult struct {
	Index    int
	Distance float32
}

func squaredDistance(a []float32, b []float32) float32 {
	d := float32(0)
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

// Search returns the k nearest vectors by ascending distance, ties are ordered by insertion.
func (idx *FlatIndex) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != idx.dimension && idx.Len() > 0 {
		return nil, fmt.Errorf("unexpected query dimension %d, index dimension is %d", len(query), idx.dimension)
	}
	if k > idx.Len() {
		k = idx.Len()
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, idx.Len())
	for i, vec := range idx.vectors {
		results[i] = SearchResult{Index: i, Distance: squaredDistance(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results[:k], nil
}
