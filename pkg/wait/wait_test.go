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
	"strings"
	"testing"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/backoff"
	"github.com/DataBiosphere/dsub-sub000/pkg/job"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
)

// fakeClock advances a fixed step on every sleep so polls never block.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps++
	c.now = c.now.Add(d + time.Second)
}

// fakeProvider is a scripted in-memory backend. onLookup runs before each
// poll's results are returned, letting tests advance task states.
type fakeProvider struct {
	tasks       []*provider.Task
	submissions []*job.JobDescriptor
	polls       int
	onLookup    func(poll int, f *fakeProvider)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) PrepareJobMetadata(scriptName, jobName, userID string) (job.Metadata, error) {
	return job.Metadata{JobID: jobName, JobName: jobName, UserID: userID}, nil
}

func (f *fakeProvider) SubmitJob(ctx context.Context, jd *job.JobDescriptor, skip bool) (provider.SubmitResult, error) {
	f.submissions = append(f.submissions, jd)
	res := provider.SubmitResult{JobID: jd.Metadata.JobID, UserID: jd.Metadata.UserID}
	for _, t := range jd.Tasks {
		f.tasks = append(f.tasks, &provider.Task{
			Identity: provider.Identity{
				JobID:       jd.Metadata.JobID,
				JobName:     jd.Metadata.JobName,
				UserID:      jd.Metadata.UserID,
				TaskID:      t.Metadata.TaskIDString(),
				TaskAttempt: t.Metadata.TaskAttempt,
			},
			State: provider.State{Status: provider.StatusRunning},
		})
		res.TaskIDs = append(res.TaskIDs, t.Metadata.TaskIDString())
	}
	return res, nil
}

func (f *fakeProvider) LookupJobTasks(ctx context.Context, q provider.Query) ([]*provider.Task, error) {
	f.polls++
	if f.onLookup != nil {
		f.onLookup(f.polls, f)
	}
	var out []*provider.Task
	for _, t := range f.tasks {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeProvider) DeleteJobs(ctx context.Context, q provider.Query) ([]*provider.Task, []string, error) {
	return nil, nil, nil
}

func (f *fakeProvider) TaskCompletionMessages(tasks []*provider.Task) []string {
	var msgs []string
	for _, t := range tasks {
		msgs = append(msgs, fmt.Sprintf("job %s task %q: %s", t.Identity.JobID, t.Identity.TaskID, t.State.Status))
	}
	return msgs
}

func newTestPoller(f *fakeProvider) (*Poller, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)}
	return &Poller{
		Provider: f,
		Clock:    clock,
		Interval: backoff.NewConstant(time.Second),
	}, clock
}

func runningTask(jobID, taskID string) *provider.Task {
	return &provider.Task{
		Identity: provider.Identity{JobID: jobID, TaskID: taskID},
		State:    provider.State{Status: provider.StatusRunning},
	}
}

func TestWaitForAnyFailFast(t *testing.T) {
	f := &fakeProvider{tasks: []*provider.Task{
		runningTask("j1", "1"),
		runningTask("j1", "2"),
		runningTask("j2", "1"),
	}}
	// One task of j1 fails on the second poll while its sibling runs on.
	f.onLookup = func(poll int, f *fakeProvider) {
		if poll == 2 {
			f.tasks[0].State.Status = provider.StatusFailure
		}
	}
	p, clock := newTestPoller(f)

	finished, err := p.WaitForAny(context.Background(), []string{"j1", "j2"})
	if err != nil {
		t.Fatalf("WaitForAny: %v", err)
	}
	if len(finished) != 1 || finished[0] != "j1" {
		t.Errorf("finished = %v, want [j1]", finished)
	}
	if clock.sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", clock.sleeps)
	}
	// The sibling task must not have been canceled.
	if f.tasks[1].State.Status != provider.StatusRunning {
		t.Errorf("sibling status = %s, want RUNNING", f.tasks[1].State.Status)
	}
}

func TestDominantTaskPrefersFailures(t *testing.T) {
	early := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	firstFailed := &provider.Task{
		Identity: provider.Identity{JobID: "j", TaskID: "3"},
		Timing:   provider.Timing{EndTime: late},
		State:    provider.State{Status: provider.StatusFailure},
	}
	earlierFailed := &provider.Task{
		Identity: provider.Identity{JobID: "j", TaskID: "7"},
		Timing:   provider.Timing{EndTime: early},
		State:    provider.State{Status: provider.StatusCanceled},
	}
	tasks := []*provider.Task{
		{Identity: provider.Identity{JobID: "j", TaskID: "1"}, State: provider.State{Status: provider.StatusSuccess}},
		{Identity: provider.Identity{JobID: "j", TaskID: "2"}, State: provider.State{Status: provider.StatusRunning}},
		firstFailed,
		earlierFailed,
	}

	got := DominantTask(tasks)
	if got != earlierFailed {
		t.Errorf("dominant task = %s, want the earliest-ended failed task 7", got.Identity.TaskID)
	}
	if s := got.State.Status; s != provider.StatusFailure && s != provider.StatusCanceled {
		t.Errorf("dominant status = %s, want FAILURE or CANCELED", s)
	}
}

func TestDominantTaskRunningOverSuccess(t *testing.T) {
	tasks := []*provider.Task{
		{Identity: provider.Identity{TaskID: "1"}, State: provider.State{Status: provider.StatusSuccess}},
		{Identity: provider.Identity{TaskID: "2"}, State: provider.State{Status: provider.StatusRunning}},
	}
	if got := DominantTask(tasks); got.Identity.TaskID != "2" {
		t.Errorf("dominant task = %s, want the running task", got.Identity.TaskID)
	}
}

func TestWaitAfterReportsNotFound(t *testing.T) {
	f := &fakeProvider{}
	p, _ := newTestPoller(f)

	msgs := p.WaitAfter(context.Background(), []string{"no-such-job"}, false)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want one not-found message", msgs)
	}
}

func TestWaitAfterSkipsNoJobSentinel(t *testing.T) {
	f := &fakeProvider{}
	p, _ := newTestPoller(f)

	msgs := p.WaitAfter(context.Background(), []string{provider.NoJob}, false)
	if len(msgs) != 0 {
		t.Errorf("messages = %v, want none for the NO_JOB sentinel", msgs)
	}
	if f.polls != 0 {
		t.Errorf("polls = %d, want 0", f.polls)
	}
}

func TestWaitAfterSuccess(t *testing.T) {
	done := &provider.Task{
		Identity: provider.Identity{JobID: "j1"},
		State:    provider.State{Status: provider.StatusSuccess},
	}
	f := &fakeProvider{tasks: []*provider.Task{done}}
	p, _ := newTestPoller(f)

	if msgs := p.WaitAfter(context.Background(), []string{"j1"}, false); len(msgs) != 0 {
		t.Errorf("messages = %v, want none", msgs)
	}
}

func TestWaitAfterReportsFailedPredecessors(t *testing.T) {
	f := &fakeProvider{tasks: []*provider.Task{
		{Identity: provider.Identity{JobID: "a"}, State: provider.State{Status: provider.StatusFailure}},
		{Identity: provider.Identity{JobID: "c"}, State: provider.State{Status: provider.StatusCanceled}},
	}}
	p, _ := newTestPoller(f)

	msgs := p.WaitAfter(context.Background(), []string{"a", "c"}, false)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want one per unsuccessful job", msgs)
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "job a") || !strings.Contains(joined, "job c") {
		t.Errorf("messages = %v, want both jobs named", msgs)
	}
}

func TestWaitAfterStopOnFailureEndsTheWait(t *testing.T) {
	f := &fakeProvider{tasks: []*provider.Task{
		{Identity: provider.Identity{JobID: "a"}, State: provider.State{Status: provider.StatusFailure}},
		runningTask("b", "1"),
	}}
	p, _ := newTestPoller(f)

	msgs := p.WaitAfter(context.Background(), []string{"a", "b"}, true)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "job a") {
		t.Fatalf("messages = %v, want only the first failure", msgs)
	}
	// b never finishes; only the early exit lets the wait return.
	if got := f.tasks[1].State.Status; got != provider.StatusRunning {
		t.Errorf("job b status = %q, want still running", got)
	}
}

// retryJob builds a single-task job with the given retry budget.
func retryJob(t *testing.T, retries int) *job.JobDescriptor {
	t.Helper()
	one := 1
	jd, err := job.New(
		job.Metadata{JobID: "j1", JobName: "retry-test", UserID: "alice"},
		job.Params{},
		job.Resources{Retries: retries, Logging: "/tmp/logs"},
		[]job.TaskDescriptor{{
			Metadata:  job.TaskMetadata{TaskID: &one, TaskAttempt: 1},
			Resources: job.Resources{Retries: retries, Logging: "/tmp/logs"},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return jd
}

// failNTimes flips every RUNNING task to FAILURE for the first n polls that
// observe one, then to SUCCESS.
func failNTimes(n int) func(poll int, f *fakeProvider) {
	failed := 0
	return func(_ int, f *fakeProvider) {
		for _, task := range f.tasks {
			if task.State.Status == provider.StatusRunning {
				if failed < n {
					failed++
					task.State.Status = provider.StatusFailure
				} else {
					task.State.Status = provider.StatusSuccess
				}
			}
		}
	}
}

func TestWaitAndRetryUnderBudget(t *testing.T) {
	const retries = 2
	jd := retryJob(t, retries)
	f := &fakeProvider{onLookup: failNTimes(retries)}
	p, _ := newTestPoller(f)

	// Simulate the initial submission, then drive the retry loop.
	if _, err := f.SubmitJob(context.Background(), jd, false); err != nil {
		t.Fatal(err)
	}
	f.submissions = nil

	msgs := p.WaitAndRetry(context.Background(), jd)
	if len(msgs) != 0 {
		t.Errorf("messages = %v, want none after recovery within budget", msgs)
	}
	if len(f.submissions) != retries {
		t.Errorf("resubmissions = %d, want %d", len(f.submissions), retries)
	}
	for i, sub := range f.submissions {
		if len(sub.Tasks) != 1 {
			t.Fatalf("resubmission %d carries %d tasks, want 1", i, len(sub.Tasks))
		}
		if got, want := sub.Tasks[0].Metadata.TaskAttempt, i+2; got != want {
			t.Errorf("resubmission %d attempt = %d, want %d", i, got, want)
		}
	}
}

func TestWaitAndRetryExhaustsBudget(t *testing.T) {
	const retries = 2
	jd := retryJob(t, retries)
	f := &fakeProvider{onLookup: failNTimes(retries + 1)}
	p, _ := newTestPoller(f)

	if _, err := f.SubmitJob(context.Background(), jd, false); err != nil {
		t.Fatal(err)
	}
	f.submissions = nil

	msgs := p.WaitAndRetry(context.Background(), jd)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want exactly one", msgs)
	}
	if len(f.submissions) != retries {
		t.Errorf("resubmissions = %d, want %d (no resubmission past the budget)", len(f.submissions), retries)
	}
}

func TestWaitAndRetryReresolvesLoggingPerAttempt(t *testing.T) {
	jd := retryJob(t, 1)
	f := &fakeProvider{onLookup: failNTimes(1)}
	p, _ := newTestPoller(f)

	if _, err := f.SubmitJob(context.Background(), jd, false); err != nil {
		t.Fatal(err)
	}
	f.submissions = nil

	if msgs := p.WaitAndRetry(context.Background(), jd); len(msgs) != 0 {
		t.Fatalf("messages = %v", msgs)
	}
	if len(f.submissions) != 1 {
		t.Fatalf("resubmissions = %d, want 1", len(f.submissions))
	}
	got := f.submissions[0].Tasks[0].Resources.LoggingPath
	if want := "/tmp/logs/j1.1.2.log"; got != want {
		t.Errorf("retry logging path = %q, want %q", got, want)
	}
}

func TestWaitAndRetryCanceledTaskIsTerminal(t *testing.T) {
	jd := retryJob(t, 3)
	f := &fakeProvider{}
	p, _ := newTestPoller(f)

	if _, err := f.SubmitJob(context.Background(), jd, false); err != nil {
		t.Fatal(err)
	}
	f.submissions = nil
	f.tasks[0].State.Status = provider.StatusCanceled

	msgs := p.WaitAndRetry(context.Background(), jd)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want one for the canceled task", msgs)
	}
	if len(f.submissions) != 0 {
		t.Errorf("canceled task was resubmitted %d times", len(f.submissions))
	}
}
