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
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdg-charusat/super-roast-bot/cmd/services/utils"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
)

// sessionsViper represents the configuration of the sessions command
var sessionsViper = viper.New()

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the conversations remembered in a memory file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := roastbot.CreateMemoryBackend(roastbot.MemoryOptions{
			Backend:     roastbot.MemoryBackendBolt,
			File:        sessionsViper.GetString(utils.MemoryFileKey),
			MaxTurns:    sessionsViper.GetInt(utils.MaxTurnsKey),
			MaxSessions: memory.DefaultMaxSessions,
		})
		if err != nil {
			return err
		}
		defer backend.Destroy()

		return runSessionsCmd(context.Background(), os.Stdout, backend)
	},
}

type sessionSummary struct {
	id        string
	exchanges []memory.Exchange
}

// runSessionsCmd renders a table of the sessions remembered by the backend, sorted by id
func runSessionsCmd(ctx context.Context, out io.Writer, backend memory.Backend) error {
	sessionIDs, err := backend.Sessions(ctx)
	if err != nil {
		return err
	}

	summaries := make([]sessionSummary, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		history, err := backend.History(ctx, sessionID)
		if err != nil {
			return err
		}
		summaries = append(summaries, sessionSummary{id: sessionID, exchanges: history})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].id < summaries[j].id
	})

	table := tablewriter.NewWriter(out)
	table.SetBorder(false)
	table.SetHeader([]string{
		"session",
		"exchanges",
		"last activity",
	})
	exchangesCount := 0
	for _, summary := range summaries {
		lastActivity := "N/A"
		if len(summary.exchanges) > 0 {
			lastActivity = humanize.Time(summary.exchanges[len(summary.exchanges)-1].CreatedAt)
		}
		exchangesCount += len(summary.exchanges)
		table.Append([]string{
			summary.id,
			fmt.Sprintf("%d", len(summary.exchanges)),
			lastActivity,
		})
	}
	table.SetCaption(true, fmt.Sprintf("%d sessions, %d exchanges remembered", len(summaries), exchangesCount))
	table.Render()
	return nil
}

func init() {
	sessionsViper.SetDefault(utils.MemoryFileKey, roastbot.DefaultOptions.Memory.File)
	_ = sessionsViper.BindEnv(utils.MemoryFileKey, "ROASTBOT_MEMORY_FILE")
	sessionsCmd.Flags().String(
		utils.MemoryFileKey,
		sessionsViper.GetString(utils.MemoryFileKey),
		"Conversation memory file of the bolt backend",
	)

	sessionsViper.SetDefault(utils.MaxTurnsKey, roastbot.DefaultOptions.Memory.MaxTurns)
	_ = sessionsViper.BindEnv(utils.MaxTurnsKey, "ROASTBOT_MAX_TURNS")
	sessionsCmd.Flags().Int(
		utils.MaxTurnsKey,
		sessionsViper.GetInt(utils.MaxTurnsKey),
		"Number of exchanges remembered per session",
	)

	// Bind "cobra" flags defined in the CLI with viper
	_ = sessionsViper.BindPFlags(sessionsCmd.Flags())
}
