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
	"os"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	statusJobs     []string
	statusNames    []string
	statusUsers    []string
	statusStatuses []string
	statusTasks    []string
	statusLabels   map[string]string
	statusAge      time.Duration
	statusLimit    int
	statusFull     bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringSliceVar(&statusJobs, "jobs", nil, "Job ids to report on. '*' matches all.")
	statusCmd.Flags().StringSliceVar(&statusNames, "names", nil, "Job names to report on.")
	statusCmd.Flags().StringSliceVar(&statusUsers, "users", nil, "Users whose jobs to report on.")
	statusCmd.Flags().StringSliceVar(&statusStatuses, "statuses", nil, "Task statuses to report on (RUNNING, SUCCESS, FAILURE, CANCELED).")
	statusCmd.Flags().StringSliceVar(&statusTasks, "tasks", nil, "Task ids to report on.")
	statusCmd.Flags().StringToStringVar(&statusLabels, "label", nil, "Labels the tasks must carry, as NAME=VALUE.")
	statusCmd.Flags().DurationVar(&statusAge, "age", 0, "Only report tasks created within this duration.")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 0, "Maximum number of tasks to report; 0 is unlimited.")
	statusCmd.Flags().BoolVar(&statusFull, "full", false, "Report the full field set per task, as YAML.")
}

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Reports the status of submitted jobs and tasks.",
	Run:          runStatusCmd,
	SilenceUsage: true,
}

func runStatusCmd(cmd *cobra.Command, args []string) {
	prov, err := newProvider()
	if err != nil {
		logging.Fatal("%v", err)
	}

	q := provider.Query{
		JobIDs:   statusJobs,
		JobNames: statusNames,
		UserIDs:  statusUsers,
		TaskIDs:  statusTasks,
		Labels:   statusLabels,
		Limit:    statusLimit,
	}
	for _, s := range statusStatuses {
		q.Statuses = append(q.Statuses, provider.Status(s))
	}
	if statusAge > 0 {
		q.CreateTimeMin = time.Now().Add(-statusAge)
	}

	tasks, err := prov.LookupJobTasks(cmd.Context(), q)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if len(tasks) == 0 {
		logging.Info("no tasks match")
		return
	}
	if statusFull {
		renderFull(tasks)
		return
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%-10s %s", t.State.Status, t.Identity.JobID)
		if t.Identity.TaskID != "" {
			line += " task " + t.Identity.TaskID
		}
		if t.Identity.TaskAttempt > 1 {
			line += fmt.Sprintf(" (attempt %d)", t.Identity.TaskAttempt)
		}
		if t.State.Message != "" {
			line += "  " + t.State.Message
		}
		fmt.Println(line)
	}
}

// fullFields is the canonical field vocabulary rendered by --full.
var fullFields = []string{
	"job-id", "job-name", "user-id", "task-id", "task-attempt",
	"task-status", "status-message", "status-detail",
	"create-time", "start-time", "end-time", "last-update",
	"labels", "envs", "inputs", "outputs",
	"logging", "events", "provider",
}

func renderFull(tasks []*provider.Task) {
	var records []map[string]interface{}
	for _, t := range tasks {
		record := make(map[string]interface{}, len(fullFields))
		for _, f := range fullFields {
			record[f] = t.Field(f, nil)
		}
		records = append(records, record)
	}
	out, err := yaml.Marshal(records)
	if err != nil {
		logging.Fatal("failed to render status: %v", err)
	}
	os.Stdout.Write(out)
}
