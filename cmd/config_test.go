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
	"testing"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
)

func TestConfigCommand(t *testing.T) {
	options := roastbot.DefaultOptions
	options.APIKey = "gsk_secret"

	output, err := runConfigCmd(options)
	require.NoError(t, err)

	assert.NotContains(t, output, "gsk_secret")
	assert.Contains(t, output, "has_api_key: true")

	parsed := map[string]interface{}{}
	require.NoError(t, yaml.Unmarshal([]byte(output), &parsed))
	assert.Contains(t, parsed, "http")
	assert.Contains(t, parsed, "llm")
	assert.Contains(t, parsed, "corpus")
	assert.Contains(t, parsed, "memory")
	assert.Contains(t, parsed, "rate_limit")

	llmConfig, ok := parsed["llm"].(map[interface{}]interface{})
	require.True(t, ok)
	assert.Equal(t, "llama-3.1-8b-instant", llmConfig["model"])
}

func TestConfigCommandWithoutAPIKey(t *testing.T) {
	output, err := runConfigCmd(roastbot.DefaultOptions)
	require.NoError(t, err)
	assert.Contains(t, output, "has_api_key: false")
}

func TestConfigCommandSnapshot(t *testing.T) {
	options := roastbot.DefaultOptions
	options.HTTP.XSRFSecret = "xsrf_secret"

	output, err := runConfigCmd(options)
	require.NoError(t, err)
	// Check the rendered configuration against the previously generated snapshot
	cupaloy.SnapshotT(t, output)
}
