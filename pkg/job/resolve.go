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

package job

import (
	"strconv"
	"strings"
	"time"
)

// ResolveLogging renders the task's log destination from the job's logging
// template. A template naming a .log file may use the {job-id}, {task-id},
// {user-id}, {job-name}, and {task-attempt} placeholders; anything else is
// treated as a directory and receives the default
// {dir}/{job-id}[.{task-id}][.{task-attempt}].log name.
func ResolveLogging(template string, meta Metadata, task TaskMetadata) string {
	if template == "" {
		return ""
	}
	if strings.HasSuffix(template, ".log") {
		r := strings.NewReplacer(
			"{job-id}", meta.JobID,
			"{job-name}", meta.JobName,
			"{user-id}", meta.UserID,
			"{task-id}", task.TaskIDString(),
			"{task-attempt}", strconv.Itoa(task.TaskAttempt),
		)
		return r.Replace(template)
	}

	parts := []string{meta.JobID}
	if task.TaskID != nil {
		parts = append(parts, task.TaskIDString())
	}
	if task.TaskAttempt > 0 {
		parts = append(parts, strconv.Itoa(task.TaskAttempt))
	}
	return strings.TrimRight(template, "/") + "/" + strings.Join(parts, ".") + ".log"
}

// Resolve computes the per-attempt derived fields of a task: the logging
// destination and the preemptible decision. It runs once at submission time
// and again before every retry.
func (j *JobDescriptor) Resolve(task *TaskDescriptor) {
	task.Resources.LoggingPath = ResolveLogging(task.Resources.Logging, j.Metadata, task.Metadata)
	task.Resources.UsePreemptible = task.Resources.Preemptible.ForAttempt(task.Metadata.TaskAttempt)
}

// RetryTask produces the descriptor for the next attempt of a failed task:
// same task id, incremented attempt, derived fields re-resolved. The original
// descriptor and the job's other tasks are never mutated.
func (j *JobDescriptor) RetryTask(task TaskDescriptor, now time.Time) TaskDescriptor {
	next := task
	next.Metadata.TaskAttempt++
	next.Metadata.CreateTime = now
	j.Resolve(&next)
	return next
}

// WithTasks returns a shallow copy of the job carrying only the given tasks,
// for resubmitting a subset of a task array.
func (j *JobDescriptor) WithTasks(tasks ...TaskDescriptor) *JobDescriptor {
	next := *j
	next.Tasks = tasks
	return &next
}

// ResolveAll resolves every task's derived fields before submission.
func (j *JobDescriptor) ResolveAll() {
	for i := range j.Tasks {
		j.Resolve(&j.Tasks[i])
	}
}
