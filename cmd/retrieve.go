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
	"fmt"
	"strings"

	"github.com/ryanuber/columnize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdg-charusat/super-roast-bot/cmd/services/utils"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/rag"
)

const (
	retrieveThemeKey = "theme"
	retrieveRawKey   = "raw"
)

const maxDisplayedTextLength = 72

// retrieveViper represents the configuration of the retrieve command
var retrieveViper = viper.New()

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Print the roast context retrieved from the corpus for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := utils.GetRoastbotOptions(retrieveViper)
		if err != nil {
			return err
		}

		ctx := context.Background()
		retriever, err := roastbot.CreateRetriever(ctx, options, afero.NewOsFs())
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		theme := retrieveViper.GetString(retrieveThemeKey)

		if retrieveViper.GetBool(retrieveRawKey) {
			retrieved, err := retriever.Retrieve(ctx, query, options.Corpus.TopK, theme)
			if err != nil {
				return err
			}
			fmt.Println(retrieved)
			return nil
		}

		chunks, err := retriever.Search(ctx, query, options.Corpus.TopK, theme)
		if err != nil {
			return err
		}
		fmt.Println(formatRetrievedChunks(chunks))
		return nil
	},
}

func shorten(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength-1]) + "…"
}

func formatRetrievedChunks(chunks []rag.RetrievedChunk) string {
	var output []string
	row := []string{"RANK", "THEME", "SOURCE", "DISTANCE", "TEXT"}
	output = append(output, strings.Join(row, "|"))

	for rank, chunk := range chunks {
		theme := chunk.Theme
		if theme == "" {
			theme = "-"
		}
		source := chunk.Source
		if source == "" {
			source = "-"
		}
		row := []string{
			fmt.Sprintf("%d", rank+1),
			theme,
			source,
			fmt.Sprintf("%.4f", chunk.Distance),
			// Pipes are the column separator
			strings.ReplaceAll(shorten(chunk.Text, maxDisplayedTextLength), "|", "/"),
		}
		output = append(output, strings.Join(row, "|"))
	}
	return columnize.SimpleFormat(output)
}

func init() {
	retrieveViper.SetDefault(retrieveThemeKey, "")
	retrieveCmd.Flags().String(
		retrieveThemeKey,
		retrieveViper.GetString(retrieveThemeKey),
		"Theme promoted in the results, e.g. coding or gym",
	)

	retrieveViper.SetDefault(retrieveRawKey, false)
	retrieveCmd.Flags().Bool(
		retrieveRawKey,
		retrieveViper.GetBool(retrieveRawKey),
		"Print the context exactly as it is included in the prompt",
	)

	utils.PopulateRoastbotOptionsFlags(retrieveCmd, retrieveViper, roastbot.DefaultOptions)

	// Don't sort alphabetically, keep insertion order
	retrieveCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = retrieveViper.BindPFlags(retrieveCmd.Flags())
}
