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
	"github.com/spf13/cobra"
)

var (
	deleteJobs  []string
	deleteTasks []string
	deleteUsers []string
)

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringSliceVar(&deleteJobs, "jobs", nil, "Job ids to cancel. '*' matches all. Required.")
	deleteCmd.Flags().StringSliceVar(&deleteTasks, "tasks", nil, "Task ids to cancel within the selected jobs.")
	deleteCmd.Flags().StringSliceVar(&deleteUsers, "users", nil, "Only cancel jobs belonging to these users.")

	_ = deleteCmd.MarkFlagRequired("jobs")
}

var deleteCmd = &cobra.Command{
	Use:          "delete",
	Short:        "Cancels running jobs and tasks.",
	Run:          runDeleteCmd,
	SilenceUsage: true,
}

func runDeleteCmd(cmd *cobra.Command, args []string) {
	prov, err := newProvider()
	if err != nil {
		logging.Fatal("%v", err)
	}

	canceled, messages, err := prov.DeleteJobs(cmd.Context(), provider.Query{
		JobIDs:  deleteJobs,
		TaskIDs: deleteTasks,
		UserIDs: deleteUsers,
	})
	if err != nil {
		logging.Fatal("%v", err)
	}
	for _, m := range messages {
		logging.Warn("%s", m)
	}
	if len(canceled) == 0 {
		logging.Info("no running tasks match")
		return
	}
	for _, t := range canceled {
		line := t.Identity.JobID
		if t.Identity.TaskID != "" {
			line += " task " + t.Identity.TaskID
		}
		fmt.Println(line)
	}
	logging.Info("canceled %d task(s)", len(canceled))
}
