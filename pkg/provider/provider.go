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

// Package provider defines the contract every execution backend implements
// and the canonical vocabulary used to describe a task regardless of
// backend. The orchestration layer depends only on this package, never on a
// backend's native representation.
package provider

import (
	"context"
	"fmt"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
)

// NoJob is the sentinel job id meaning nothing was launched (for example,
// skip-if-output-present found all outputs). Downstream dependency checks
// must treat it as already succeeded.
const NoJob = "NO_JOB"

// SubmitResult reports what a submission launched.
type SubmitResult struct {
	JobID   string
	UserID  string
	TaskIDs []string
}

// Provider is the capability set of an execution backend.
type Provider interface {
	// Name returns the backend's identifier (for example "local").
	Name() string

	// PrepareJobMetadata assigns backend-specific job metadata, including a
	// job id that is stable for the life of the job.
	PrepareJobMetadata(scriptName, jobName, userID string) (job.Metadata, error)

	// SubmitJob launches the descriptor's tasks. With skipIfOutputPresent
	// set, a job whose declared outputs all exist launches nothing and
	// reports the NoJob sentinel.
	SubmitJob(ctx context.Context, jd *job.JobDescriptor, skipIfOutputPresent bool) (SubmitResult, error)

	// LookupJobTasks returns tasks matching the query, most recent first.
	LookupJobTasks(ctx context.Context, q Query) ([]*Task, error)

	// DeleteJobs cancels the currently running tasks matching the query.
	// Already-finished tasks are silently skipped. Per-task cancellation
	// problems are collected as messages, not errors.
	DeleteJobs(ctx context.Context, q Query) (canceled []*Task, messages []string, err error)

	// TaskCompletionMessages renders one human-readable outcome line per
	// task.
	TaskCompletionMessages(tasks []*Task) []string
}

// SubmissionError reports a backend rejecting a built request. Submission
// failures are fail-fast: no partial job state is persisted as launched.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("job submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
