/*
Copyright 2025 Hisaab Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hisaab-io/hisaab"
	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/database"
	"github.com/hisaab-io/hisaab/internal/notification"
)

// Hisaab represents the CLI application, encapsulating the root Cobra command.
type Hisaab struct {
	cmd *cobra.Command
}

// hisaabInstance holds the runtime service instance and its configuration,
// shared by every subcommand.
type hisaabInstance struct {
	hisaab *hisaab.Hisaab
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service instance before
// any subcommand executes.
func preRun(app *hisaabInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("hisaab.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newHisaab, err := setupHisaab(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.hisaab = newHisaab
		app.cnf = cnf

		return nil
	}
}

// setupHisaab connects the datasource and builds the service instance.
func setupHisaab(cfg *config.Configuration) (*hisaab.Hisaab, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return &hisaab.Hisaab{}, fmt.Errorf("error getting datasource: %v", err)
	}

	newHisaab, err := hisaab.NewHisaab(db)
	if err != nil {
		return &hisaab.Hisaab{}, fmt.Errorf("error creating hisaab: %v", err)
	}
	return newHisaab, nil
}

// NewCLI builds the command-line interface with the server, workers, migrate
// and config subcommands.
func NewCLI() *Hisaab {
	var configFile string
	h := &hisaabInstance{}

	var rootCmd = &cobra.Command{
		Use:   "hisaab",
		Short: "Wallet ledger and top-up confirmation service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./hisaab.json", "Configuration file for the wallet service")

	rootCmd.PersistentPreRunE = preRun(h)

	rootCmd.AddCommand(serverCommands(h))
	rootCmd.AddCommand(workerCommands(h))
	rootCmd.AddCommand(migrateCommands(h))
	rootCmd.AddCommand(configCommands())

	return &Hisaab{cmd: rootCmd}
}

func (w Hisaab) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
