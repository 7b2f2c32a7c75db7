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

package provider

import (
	"testing"
	"time"
)

func taskAt(jobID, taskID string, attempt int, created time.Time) *Task {
	return &Task{
		Identity: Identity{JobID: jobID, TaskID: taskID, TaskAttempt: attempt},
		Timing:   Timing{CreateTime: created},
		State:    State{Status: StatusRunning},
	}
}

func TestQueryValidate(t *testing.T) {
	if err := (Query{JobIDs: []string{"j1"}, JobNames: []string{"align"}}).Validate(); err == nil {
		t.Error("job-id AND job-name filter accepted")
	}
	if err := (Query{JobIDs: []string{"j1"}, JobNames: []string{"*"}}).Validate(); err != nil {
		t.Errorf("wildcard job name rejected: %v", err)
	}
	if err := (Query{JobIDs: []string{"j1"}}).Validate(); err != nil {
		t.Errorf("job-id-only filter rejected: %v", err)
	}
}

func TestQueryMatches(t *testing.T) {
	now := time.Now()
	task := &Task{
		Identity: Identity{JobID: "j1", JobName: "align", UserID: "alice", TaskID: "2"},
		Timing:   Timing{CreateTime: now},
		State:    State{Status: StatusSuccess},
		Params:   TaskParams{Labels: map[string]string{"batch": "nightly"}},
	}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty matches all", Query{}, true},
		{"wildcard status", Query{Statuses: []Status{"*"}}, true},
		{"status match", Query{Statuses: []Status{StatusSuccess}}, true},
		{"status mismatch", Query{Statuses: []Status{StatusRunning}}, false},
		{"job id match", Query{JobIDs: []string{"j0", "j1"}}, true},
		{"job id mismatch", Query{JobIDs: []string{"j0"}}, false},
		{"user match", Query{UserIDs: []string{"alice"}}, true},
		{"task id mismatch", Query{TaskIDs: []string{"1"}}, false},
		{"label match", Query{Labels: map[string]string{"batch": "nightly"}}, true},
		{"label mismatch", Query{Labels: map[string]string{"batch": "daily"}}, false},
		{"create time cutoff", Query{CreateTimeMin: now.Add(time.Minute)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.query.Matches(task); got != tc.want {
				t.Errorf("Matches = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestTaskField(t *testing.T) {
	task := &Task{
		Identity:     Identity{JobID: "j1", TaskID: "3", TaskAttempt: 2},
		State:        State{Status: StatusFailure, Message: "exit 1"},
		ProviderName: "local",
		Attributes:   map[string]interface{}{"task-dir": "/tmp/j1/3"},
	}
	if got := task.Field("job-id", nil); got != "j1" {
		t.Errorf("job-id = %v", got)
	}
	if got := task.Field("task-status", nil); got != "FAILURE" {
		t.Errorf("task-status = %v", got)
	}
	if got := task.Field("task-dir", nil); got != "/tmp/j1/3" {
		t.Errorf("extension field task-dir = %v", got)
	}
	if got := task.Field("no-such-field", "fallback"); got != "fallback" {
		t.Errorf("default = %v", got)
	}
}

func TestMergeSortedInterleavesByRecency(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	a := []*Task{
		taskAt("a", "2", 0, base.Add(3*time.Minute)),
		taskAt("a", "1", 0, base.Add(1*time.Minute)),
	}
	b := []*Task{
		taskAt("b", "1", 0, base.Add(2*time.Minute)),
		taskAt("b", "2", 0, base),
	}

	merged := MergeSorted(MoreRecent, NewSliceStream(a), NewSliceStream(b))
	if len(merged) != 4 {
		t.Fatalf("merged %d tasks, want 4", len(merged))
	}
	wantJobs := []string{"a", "b", "a", "b"}
	for i, w := range wantJobs {
		if merged[i].Identity.JobID != w {
			t.Errorf("merged[%d].JobID = %q, want %q", i, merged[i].Identity.JobID, w)
		}
	}
	for i := 1; i < len(merged); i++ {
		if MoreRecent(merged[i], merged[i-1]) {
			t.Errorf("merged[%d] is more recent than merged[%d]", i, i-1)
		}
	}
}

func TestMoreRecentTieBreaks(t *testing.T) {
	base := time.Now()
	t1 := taskAt("j", "2", 0, base)
	t2 := taskAt("j", "10", 0, base)
	if !MoreRecent(t2, t1) {
		t.Error("task 10 should sort before task 2 at equal create time")
	}
	a1 := taskAt("j", "1", 1, base)
	a2 := taskAt("j", "1", 2, base)
	if !MoreRecent(a2, a1) {
		t.Error("attempt 2 should sort before attempt 1")
	}
}
