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
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/wait"
	"github.com/spf13/cobra"
)

var waitStopOnFailure bool

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().BoolVar(&waitStopOnFailure, "stop-on-failure", false, "Stop waiting as soon as any job fails.")
}

var waitCmd = &cobra.Command{
	Use:          "wait JOB_ID...",
	Short:        "Blocks until the given jobs complete.",
	Args:         cobra.MinimumNArgs(1),
	Run:          runWaitCmd,
	SilenceUsage: true,
}

func runWaitCmd(cmd *cobra.Command, args []string) {
	prov, err := newProvider()
	if err != nil {
		logging.Fatal("%v", err)
	}

	poller := wait.NewPoller(prov)
	if msgs := poller.WaitAfter(cmd.Context(), args, waitStopOnFailure); len(msgs) > 0 {
		for _, m := range msgs {
			logging.Error("%s", m)
		}
		logging.Fatal("%d job(s) did not complete successfully", len(msgs))
	}
	logging.Info("all jobs completed successfully")
}
