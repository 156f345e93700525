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

package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdg-charusat/super-roast-bot/cmd/services/utils"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot"
	"github.com/gdg-charusat/super-roast-bot/version"
)

// roastbotViper represents the configuration of the roastbot command
var roastbotViper = viper.New()

// roastbotCmd represents the roastbot service
var roastbotCmd = &cobra.Command{
	Use:     "roastbot",
	Aliases: []string{"serve"},
	Short:   "Run the Super RoastBot service",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _args []string) error {
		err := configureLog(servicesViper)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"version": version.Version,
			"hash":    version.Hash,
		}).Info("starting the roastbot service")

		options, err := utils.GetRoastbotOptions(roastbotViper)
		if err != nil {
			return err
		}

		ctx := utils.ContextWithUserTermination(context.Background())

		err = roastbot.Run(ctx, options)
		if err != nil {
			if err == context.Canceled {
				log.Info("interrupted by user")
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	utils.PopulateRoastbotOptionsFlags(roastbotCmd, roastbotViper, roastbot.DefaultOptions)

	// Don't sort alphabetically, keep insertion order
	roastbotCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = roastbotViper.BindPFlags(roastbotCmd.Flags())
}
