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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/gdg-charusat/super-roast-bot/cmd/services/utils"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/llm"
)

// configViper represents the configuration of the config command
var configViper = viper.New()

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration of the roastbot service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := utils.GetRoastbotOptions(configViper)
		if err != nil {
			return err
		}
		output, err := runConfigCmd(options)
		if err != nil {
			return err
		}
		fmt.Print(output)
		return nil
	},
}

type effectiveConfig struct {
	roastbot.Options `yaml:",inline"`
	HasAPIKey        bool `yaml:"has_api_key"`
}

// runConfigCmd renders the options as yaml, secrets are omitted
func runConfigCmd(options roastbot.Options) (string, error) {
	_, hasAPIKey := llm.ValidateAPIKey(options.APIKey)
	output, err := yaml.Marshal(effectiveConfig{
		Options:   options,
		HasAPIKey: hasAPIKey,
	})
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func init() {
	utils.PopulateRoastbotOptionsFlags(configCmd, configViper, roastbot.DefaultOptions)

	// Don't sort alphabetically, keep insertion order
	configCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = configViper.BindPFlags(configCmd.Flags())
}
