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
	"bufio"
	"regexp"
	"strings"
)

const DefaultChunkSize = 500

// FallbackChunk is the only chunk of an empty corpus
const FallbackChunk = "Default roast: Your code is so dry it's a fire hazard."

var themeTagRegexp = regexp.MustCompile(`(?i)^\[THEME:(\w+)\]\s*`)

// Chunk is a piece of the corpus that can be retrieved
type Chunk struct {
	Text   string
	Theme  string
	Source string
}

// ExtractTheme splits a corpus line into its lower-cased theme tag, "" if untagged, and its text
func ExtractTheme(line string) (string, string) {
	match := themeTagRegexp.FindStringSubmatchIndex(line)
	if match == nil {
		return "", line
	}
	theme := strings.ToLower(line[match[2]:match[3]])
	return theme, strings.TrimSpace(line[match[1]:])
}

// SplitChunks splits a corpus text in chunks of at most chunkSize characters.
//
// Every non blank line not starting with '#' is a chunk, lines longer than chunkSize are cut in several chunks
// sharing the line's theme.
func SplitChunks(text string, source string, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := []Chunk{}
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		theme, lineText := ExtractTheme(line)
		runes := []rune(lineText)
		for start := 0; start < len(runes); start += chunkSize {
			end := start + chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			subChunk := strings.TrimSpace(string(runes[start:end]))
			if subChunk == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:   subChunk,
				Theme:  theme,
				Source: source,
			})
		}
	}
	return chunks
}
