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

// Package wait is the polling orchestrator: it waits for jobs to finish,
// rolls a multi-task job up to a single dominant task, and drives per-task
// retries. All loops are synchronous request/sleep/request cycles; the only
// concurrency is with the independently running tasks themselves.
package wait

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/backoff"
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
)

// DefaultPollInterval is the delay between status lookups.
const DefaultPollInterval = 10 * time.Second

// Poller runs the wait loops against one provider.
type Poller struct {
	Provider provider.Provider
	Clock    Clock
	Interval backoff.Strategy
}

// NewPoller creates a poller with the system clock and the default fixed
// poll interval.
func NewPoller(p provider.Provider) *Poller {
	return &Poller{
		Provider: p,
		Clock:    SystemClock(),
		Interval: backoff.NewConstant(DefaultPollInterval),
	}
}

// jobFinished reports whether a job needs no further waiting. A job with no
// observed tasks is finished (the caller reports it as not found), as is a
// job with any FAILURE or CANCELED task: that is the fail-fast signal, even
// while sibling tasks are still running. Siblings are never canceled here;
// the caller decides whether to keep waiting for them.
func jobFinished(tasks []*provider.Task) bool {
	if len(tasks) == 0 {
		return true
	}
	running := false
	for _, t := range tasks {
		switch t.State.Status {
		case provider.StatusFailure, provider.StatusCanceled:
			return true
		case provider.StatusRunning:
			running = true
		}
	}
	return !running
}

// WaitForAny polls until at least one of the given jobs is finished and
// returns the finished subset.
func (p *Poller) WaitForAny(ctx context.Context, jobIDs []string) ([]string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tasks, err := p.Provider.LookupJobTasks(ctx, provider.Query{JobIDs: jobIDs})
		if err != nil {
			return nil, fmt.Errorf("failed to look up tasks: %w", err)
		}

		byJob := make(map[string][]*provider.Task)
		for _, t := range tasks {
			byJob[t.Identity.JobID] = append(byJob[t.Identity.JobID], t)
		}

		var finished []string
		for _, id := range jobIDs {
			if jobFinished(byJob[id]) {
				finished = append(finished, id)
			}
		}
		if len(finished) > 0 {
			return finished, nil
		}
		p.Clock.Sleep(p.Interval.Delay(attempt))
	}
}

// DominantTask selects the one task that summarizes a multi-task job's
// outcome: any FAILURE or CANCELED task outranks RUNNING, which outranks
// SUCCESS. Among failed tasks the earliest end time wins; on exactly equal
// end times the first in input order is kept, which is deterministic given
// identical lookup ordering.
func DominantTask(tasks []*provider.Task) *provider.Task {
	var failed, running, succeeded *provider.Task
	for _, t := range tasks {
		switch t.State.Status {
		case provider.StatusFailure, provider.StatusCanceled:
			if failed == nil || t.Timing.EndTime.Before(failed.Timing.EndTime) {
				failed = t
			}
		case provider.StatusRunning:
			if running == nil {
				running = t
			}
		default:
			if succeeded == nil {
				succeeded = t
			}
		}
	}
	switch {
	case failed != nil:
		return failed
	case running != nil:
		return running
	default:
		return succeeded
	}
}

// WaitAfter waits for every given job and returns one error message per job
// that did not succeed. The NoJob sentinel counts as already succeeded; a
// job id that is never observed is reported as not found. With
// stopOnFailure, the first batch of errors ends the wait immediately.
func (p *Poller) WaitAfter(ctx context.Context, jobIDs []string, stopOnFailure bool) []string {
	pending := make(map[string]bool)
	for _, id := range jobIDs {
		if id != provider.NoJob && id != "" {
			pending[id] = true
		}
	}

	var messages []string
	for len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		finished, err := p.WaitForAny(ctx, ids)
		if err != nil {
			return append(messages, err.Error())
		}

		for _, id := range finished {
			delete(pending, id)
			tasks, err := p.Provider.LookupJobTasks(ctx, provider.Query{JobIDs: []string{id}})
			if err != nil {
				messages = append(messages, err.Error())
				continue
			}
			if len(tasks) == 0 {
				messages = append(messages, fmt.Sprintf("job %q not found", id))
				continue
			}
			dominant := DominantTask(tasks)
			if dominant.State.Status != provider.StatusSuccess {
				messages = append(messages, p.Provider.TaskCompletionMessages([]*provider.Task{dominant})...)
			} else {
				logging.Debug("job %q completed successfully", id)
			}
		}
		if stopOnFailure && len(messages) > 0 {
			break
		}
	}
	return messages
}
