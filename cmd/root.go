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
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gdg-charusat/super-roast-bot/cmd/services"
)

const envFileKey = "env_file"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roastbot",
	Short: "Super RoastBot, the chat bot that roasts you",
	PersistentPreRunE: func(cmd *cobra.Command, _args []string) error {
		envFile, err := cmd.Flags().GetString(envFileKey)
		if err != nil {
			return err
		}
		return loadEnvFile(envFile)
	},
	SilenceUsage: true,
}

// loadEnvFile loads the variables defined in a .env file without overriding the ones already set
func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("unable to load environment file %q (%w)", envFile, err)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String(envFileKey, ".env", "Environment file loaded before reading the configuration")

	// Services
	rootCmd.AddCommand(services.ServicesCmd)

	// Tools
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)

	// Version
	rootCmd.AddCommand(versionCmd)
}
