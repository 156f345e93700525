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

package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/rag"
)

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "roast…", shorten("roasted alive", 6))
	assert.Equal(t, "🔥🔥…", shorten("🔥🔥🔥🔥", 3))
}

func TestFormatRetrievedChunks(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/roasts.txt", []byte(
		"[THEME:coding] Your code is spaghetti | with sauce.\nYour career path is a 404 page.\n",
	), 0600))

	options := roastbot.DefaultOptions
	options.Corpus.DataDir = "/data"
	retriever, err := roastbot.CreateRetriever(context.Background(), options, fs)
	require.NoError(t, err)

	chunks, err := retriever.Search(context.Background(), "spaghetti code", 2, "")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	lines := strings.Split(formatRetrievedChunks(chunks), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RANK"))
	assert.Contains(t, lines[1], "coding")
	assert.Contains(t, lines[1], "roasts.txt")
	assert.Contains(t, lines[1], "spaghetti / with sauce.")
	assert.True(t, strings.HasPrefix(lines[2], "2"))
	assert.Contains(t, lines[2], " - ")
}

func TestFormatNoRetrievedChunks(t *testing.T) {
	output := formatRetrievedChunks([]rag.RetrievedChunk{})
	assert.Equal(t, "RANK  THEME  SOURCE  DISTANCE  TEXT", output)
}
