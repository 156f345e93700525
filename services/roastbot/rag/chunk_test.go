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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTheme(t *testing.T) {
	theme, text := ExtractTheme("[THEME:Fitness]  You skip leg day and code reviews.")
	assert.Equal(t, "fitness", theme)
	assert.Equal(t, "You skip leg day and code reviews.", text)

	theme, text = ExtractTheme("[theme:career] Your resume is a 404.")
	assert.Equal(t, "career", theme)
	assert.Equal(t, "Your resume is a 404.", text)

	theme, text = ExtractTheme("No tag here [THEME:fitness]")
	assert.Equal(t, "", theme)
	assert.Equal(t, "No tag here [THEME:fitness]", text)

	theme, text = ExtractTheme("[THEME:not a word] nope")
	assert.Equal(t, "", theme)
	assert.Equal(t, "[THEME:not a word] nope", text)
}

func TestSplitChunks(t *testing.T) {
	text := strings.Join([]string{
		"# Roast corpus",
		"",
		"[THEME:coding] Your code has more bugs than a rainforest.",
		"   ",
		"You write comments like you write apologies: never.",
		"[THEME:career]",
	}, "\n")

	chunks := SplitChunks(text, "roasts.txt", 500)
	assert.Equal(t, []Chunk{
		{Text: "Your code has more bugs than a rainforest.", Theme: "coding", Source: "roasts.txt"},
		{Text: "You write comments like you write apologies: never.", Theme: "", Source: "roasts.txt"},
	}, chunks)
}

func TestSplitChunksLongLines(t *testing.T) {
	line := "[THEME:gym]" + strings.Repeat("a", 12)
	chunks := SplitChunks(line, "", 5)
	assert.Len(t, chunks, 3)
	assert.Equal(t, "aaaaa", chunks[0].Text)
	assert.Equal(t, "aaaaa", chunks[1].Text)
	assert.Equal(t, "aa", chunks[2].Text)
	for _, chunk := range chunks {
		assert.Equal(t, "gym", chunk.Theme)
	}
}

func TestSplitChunksCountsCharacters(t *testing.T) {
	chunks := SplitChunks("🔥🔥🔥🔥", "", 2)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "🔥🔥", chunks[0].Text)
}

func TestSplitChunksDropsBlankSubChunks(t *testing.T) {
	chunks := SplitChunks("abc   def", "", 3)
	assert.Equal(t, []string{"abc", "def"}, texts(chunks))
}

func texts(chunks []Chunk) []string {
	result := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		result = append(result, chunk.Text)
	}
	return result
}
