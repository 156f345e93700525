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
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

const (
	healthcheckURLKey     = "url"
	healthcheckTimeoutKey = "timeout"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that a Super RoastBot service is serving",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString(healthcheckURLKey)
		timeout, _ := cmd.Flags().GetDuration(healthcheckTimeoutKey)

		client := resty.New().SetTimeout(timeout)
		err := runHealthcheckCmd(client, url)
		if err != nil {
			fmt.Println(color.RedString("unhealthy: %s", err))
			os.Exit(1)
		}
		fmt.Println(color.GreenString("healthy"))
	},
}

func runHealthcheckCmd(client *resty.Client, url string) error {
	resp, err := client.R().Get(url)
	if err != nil {
		return err
	}

	if http.StatusOK == resp.StatusCode() {
		return nil
	}

	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.Body())
}

func init() {
	healthcheckCmd.Flags().String(
		healthcheckURLKey,
		"http://localhost:8501/_stcore/health",
		"Health endpoint of the service",
	)
	healthcheckCmd.Flags().Duration(
		healthcheckTimeoutKey,
		10*time.Second,
		"Maximum duration of the check",
	)
}
