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

package local

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/DataBiosphere/dsub-sub000/pkg/shell"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// DeleteJobs cancels every RUNNING task matching the query. Cancellation is
// best-effort and race-tolerant: the die sentinel is written first so a
// runner that survives the kill signals still skips delocalization, then the
// container and runner process are signaled, and finally the CANCELED status
// is force-written so the next lookup is consistent regardless of what the
// process actually did. Signal errors are collected, not fatal. Tasks that
// already finished are silently skipped.
func (p *LocalProvider) DeleteJobs(ctx context.Context, q provider.Query) ([]*provider.Task, []string, error) {
	tasks, err := p.LookupJobTasks(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	var canceled []*provider.Task
	var messages []string
	for _, t := range tasks {
		if t.State.Status.IsTerminal() {
			continue
		}
		messages = append(messages, p.cancelTask(t)...)
		t.State.Status = provider.StatusCanceled
		canceled = append(canceled, t)
	}
	return canceled, messages, nil
}

func (p *LocalProvider) cancelTask(t *provider.Task) []string {
	dir, _ := t.Attributes["task-dir"].(string)
	if dir == "" {
		return []string{fmt.Sprintf("task %q of job %q has no on-disk directory", t.Identity.TaskID, t.Identity.JobID)}
	}

	var messages []string
	if err := afero.WriteFile(p.fs, filepath.Join(dir, dieFile), nil, 0o644); err != nil {
		messages = append(messages, fmt.Sprintf("failed to write cancel sentinel for job %q: %v", t.Identity.JobID, err))
	}

	pid, _ := t.Attributes["pid"].(int)
	seg := t.Identity.TaskID
	if seg == "" {
		seg = implicitTaskDir
	}
	messages = append(messages, p.kill(containerName(t.Identity.JobID, seg, t.Identity.TaskAttempt), pid)...)

	now := time.Now().UTC().Truncate(time.Second)
	if err := afero.WriteFile(p.fs, filepath.Join(dir, statusFile), []byte(string(provider.StatusCanceled)+"\n"), 0o644); err != nil {
		messages = append(messages, fmt.Sprintf("failed to write canceled status for job %q: %v", t.Identity.JobID, err))
	}
	if err := afero.WriteFile(p.fs, filepath.Join(dir, statusMessageFile), []byte("canceled by user\n"), 0o644); err != nil {
		messages = append(messages, fmt.Sprintf("failed to write status message for job %q: %v", t.Identity.JobID, err))
	}
	if err := afero.WriteFile(p.fs, filepath.Join(dir, endTimeFile), []byte(now.Format(time.RFC3339)+"\n"), 0o644); err != nil {
		messages = append(messages, fmt.Sprintf("failed to write end time for job %q: %v", t.Identity.JobID, err))
	}
	if err := p.appendEvent(dir, "canceled", now); err != nil {
		messages = append(messages, fmt.Sprintf("failed to record canceled event for job %q: %v", t.Identity.JobID, err))
	}

	logging.Info("canceled task %s of job %s", seg, t.Identity.JobID)
	return messages
}

// killTask signals the container by name and the tracked runner process id.
// Either signal may fail when the other already took the task down; both
// outcomes are reported, neither is fatal.
func killTask(container string, pid int) []string {
	var messages []string
	res := shell.ExecuteCommand("docker", "kill", container)
	if res.ExitCode != 0 {
		messages = append(messages, fmt.Sprintf("docker kill %s: %s", container, res.Stderr))
	}
	if pid > 0 {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
			messages = append(messages, fmt.Sprintf("kill pid %d: %v", pid, err))
		}
	}
	return messages
}

// TaskCompletionMessages renders one human-readable line per task that did
// not succeed.
func (p *LocalProvider) TaskCompletionMessages(tasks []*provider.Task) []string {
	var messages []string
	for _, t := range tasks {
		if t.State.Status == provider.StatusSuccess {
			continue
		}
		ident := "job " + t.Identity.JobID
		if t.Identity.TaskID != "" {
			ident += " task " + t.Identity.TaskID
		}
		if t.Identity.TaskAttempt > 1 {
			ident += fmt.Sprintf(" (attempt %d)", t.Identity.TaskAttempt)
		}

		var msg string
		switch t.State.Status {
		case provider.StatusCanceled:
			msg = ident + " was canceled"
		case provider.StatusFailure:
			reason := t.State.Message
			if reason == "" {
				reason = "task did not complete successfully"
			}
			msg = fmt.Sprintf("%s failed: %s", ident, reason)
		default:
			msg = fmt.Sprintf("%s is %s", ident, t.State.Status)
		}
		if t.Logging != "" && t.State.Status == provider.StatusFailure {
			msg += fmt.Sprintf(" (log: %s)", t.Logging)
		}
		messages = append(messages, msg)
	}
	return messages
}
