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

package wait

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
)

// WaitAndRetry waits for one job, resubmitting each failed task until it
// succeeds or exhausts the retry budget. Each resubmission is a fresh
// TaskDescriptor with an incremented attempt and re-resolved logging path
// and preemptible decision; only the failed task is resubmitted. The result
// is empty on success, otherwise exactly one representative completion
// message.
func (p *Poller) WaitAndRetry(ctx context.Context, jd *job.JobDescriptor) []string {
	retries := jd.Resources.Retries
	jobID := jd.Metadata.JobID

	// Current descriptor per task id, replaced as attempts are retried.
	descriptors := make(map[string]job.TaskDescriptor, len(jd.Tasks))
	for _, t := range jd.Tasks {
		descriptors[t.Metadata.TaskIDString()] = t
	}

	failures := make(map[string]int)
	counted := make(map[string]bool) // "{task-id}.{attempt}" already counted

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return []string{err.Error()}
		}
		tasks, err := p.Provider.LookupJobTasks(ctx, provider.Query{JobIDs: []string{jobID}})
		if err != nil {
			return []string{fmt.Sprintf("failed to look up tasks for job %q: %v", jobID, err)}
		}

		// Only the most recent attempt of each task id is live.
		latest := make(map[string]*provider.Task)
		for _, t := range tasks {
			cur := latest[t.Identity.TaskID]
			if cur == nil || t.Identity.TaskAttempt > cur.Identity.TaskAttempt {
				latest[t.Identity.TaskID] = t
			}
		}

		anyRunning := false
		var terminal []*provider.Task // fully failed or canceled
		var retryable []string
		for taskID, t := range latest {
			switch t.State.Status {
			case provider.StatusRunning:
				anyRunning = true
			case provider.StatusCanceled:
				terminal = append(terminal, t)
			case provider.StatusFailure:
				key := taskID + "." + strconv.Itoa(t.Identity.TaskAttempt)
				if !counted[key] {
					counted[key] = true
					failures[taskID]++
				}
				if failures[taskID] > retries {
					terminal = append(terminal, t)
				} else {
					retryable = append(retryable, taskID)
				}
			}
		}
		sort.Strings(retryable)

		for _, taskID := range retryable {
			desc, ok := descriptors[taskID]
			if !ok {
				terminal = append(terminal, latest[taskID])
				continue
			}
			next := jd.RetryTask(desc, p.Clock.Now())
			descriptors[taskID] = next
			logging.Info("retrying task %q of job %q (attempt %d of %d)",
				taskID, jobID, next.Metadata.TaskAttempt, retries+1)
			if _, err := p.Provider.SubmitJob(ctx, jd.WithTasks(next), false); err != nil {
				return []string{fmt.Sprintf("failed to resubmit task %q of job %q: %v", taskID, jobID, err)}
			}
		}

		if !anyRunning && len(retryable) == 0 {
			if len(terminal) == 0 {
				return nil
			}
			representative := DominantTask(terminal)
			msgs := p.Provider.TaskCompletionMessages([]*provider.Task{representative})
			if len(msgs) == 0 {
				msgs = []string{fmt.Sprintf("job %q did not complete successfully", jobID)}
			}
			return msgs[:1]
		}
		p.Clock.Sleep(p.Interval.Delay(attempt))
	}
}
