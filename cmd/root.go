// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider/local"
	"github.com/spf13/cobra"
)

var (
	providerName string
	localRoot    string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:          "dsub",
	Short:        "Submit, monitor, and cancel containerized batch jobs.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetDebug(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", local.ProviderName, "Backend that runs the tasks.")
	rootCmd.PersistentFlags().StringVar(&localRoot, "local-root", "", "Job tree directory for the local provider. Defaults to ~/"+local.DefaultRoot+".")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging.")
}

// newProvider selects the backend named by --provider. The set of backends
// is a closed enumeration.
func newProvider() (provider.Provider, error) {
	switch providerName {
	case local.ProviderName:
		return local.New(localRoot)
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("%v", err)
	}
}
