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
	"testing"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

func TestNewRejectsOverlappingParamNames(t *testing.T) {
	jobParams := Params{
		Envs: []params.EnvParam{{Name: "SAMPLE", Value: "default"}},
	}
	id := 1
	task := TaskDescriptor{
		Metadata: TaskMetadata{TaskID: &id},
		Params: Params{
			Envs: []params.EnvParam{{Name: "SAMPLE", Value: "s1"}},
		},
	}
	_, err := New(Metadata{JobID: "j"}, jobParams, Resources{}, []TaskDescriptor{task})
	if err == nil {
		t.Fatal("overlapping job/task parameter names accepted")
	}
	if !params.IsValidation(err) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestImplicitTaskHasNullID(t *testing.T) {
	task := ImplicitTask(Resources{}, time.Now())
	if task.Metadata.TaskID != nil {
		t.Errorf("implicit task id = %v, want nil", *task.Metadata.TaskID)
	}
	if task.Metadata.TaskIDString() != "" {
		t.Errorf("implicit task id string = %q, want empty", task.Metadata.TaskIDString())
	}
}

func TestResolveLogging(t *testing.T) {
	meta := Metadata{JobID: "align--alice--250901", JobName: "align", UserID: "alice"}
	two := 2

	tests := []struct {
		name     string
		template string
		task     TaskMetadata
		want     string
	}{
		{
			name:     "directory default, implicit task",
			template: "gs://bucket/logs",
			task:     TaskMetadata{},
			want:     "gs://bucket/logs/align--alice--250901.log",
		},
		{
			name:     "directory default, task and attempt",
			template: "gs://bucket/logs/",
			task:     TaskMetadata{TaskID: &two, TaskAttempt: 3},
			want:     "gs://bucket/logs/align--alice--250901.2.3.log",
		},
		{
			name:     "explicit template with placeholders",
			template: "gs://bucket/{job-name}/{user-id}/{task-id}.log",
			task:     TaskMetadata{TaskID: &two},
			want:     "gs://bucket/align/alice/2.log",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveLogging(tc.template, meta, tc.task); got != tc.want {
				t.Errorf("ResolveLogging(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestRetryTask(t *testing.T) {
	one := 1
	jd := &JobDescriptor{
		Metadata: Metadata{JobID: "j1", JobName: "j", UserID: "u"},
	}
	task := TaskDescriptor{
		Metadata: TaskMetadata{TaskID: &one, TaskAttempt: 1},
		Resources: Resources{
			Logging:     "gs://bucket/logs",
			Retries:     3,
			Preemptible: PreemptibleUpTo(2),
		},
	}
	jd.Resolve(&task)
	if !task.Resources.UsePreemptible {
		t.Error("attempt 1 should be preemptible under an up-to-2 policy")
	}

	retry := jd.RetryTask(task, time.Now())
	if retry.Metadata.TaskAttempt != 2 {
		t.Errorf("retry attempt = %d, want 2", retry.Metadata.TaskAttempt)
	}
	if task.Metadata.TaskAttempt != 1 {
		t.Error("original task mutated by retry")
	}
	if want := "gs://bucket/logs/j1.1.2.log"; retry.Resources.LoggingPath != want {
		t.Errorf("retry logging path = %q, want %q", retry.Resources.LoggingPath, want)
	}
	if !retry.Resources.UsePreemptible {
		t.Error("attempt 2 should be preemptible under an up-to-2 policy")
	}

	third := jd.RetryTask(retry, time.Now())
	if third.Resources.UsePreemptible {
		t.Error("attempt 3 should fall back to standard compute under an up-to-2 policy")
	}
}

func TestPreemptiblePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  Preemptible
		attempt int
		want    bool
	}{
		{"never", PreemptibleNever(), 1, false},
		{"always first", PreemptibleAlways(), 1, true},
		{"always later", PreemptibleAlways(), 9, true},
		{"up-to within", PreemptibleUpTo(3), 3, true},
		{"up-to beyond", PreemptibleUpTo(3), 4, false},
		{"up-to zero attempt counts as first", PreemptibleUpTo(1), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.ForAttempt(tc.attempt); got != tc.want {
				t.Errorf("ForAttempt(%d) = %t, want %t", tc.attempt, got, tc.want)
			}
		})
	}
}

func TestPreemptibleValidate(t *testing.T) {
	if err := PreemptibleUpTo(3).Validate(2); err == nil {
		t.Error("up-to-3 with 2 retries accepted")
	}
	if err := PreemptibleUpTo(3).Validate(0); err == nil {
		t.Error("up-to-3 with retries disabled accepted")
	}
	if err := PreemptibleUpTo(3).Validate(3); err != nil {
		t.Errorf("up-to-3 with 3 retries rejected: %v", err)
	}
	if err := PreemptibleAlways().Validate(0); err != nil {
		t.Errorf("always with retries disabled rejected: %v", err)
	}
}

func TestPreemptibleFlagValue(t *testing.T) {
	var p Preemptible
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"true", "true"},
		{"false", "false"},
		{"3", "3"},
	} {
		if err := p.Set(tc.in); err != nil {
			t.Fatalf("Set(%q): %v", tc.in, err)
		}
		if p.String() != tc.want {
			t.Errorf("after Set(%q): String() = %q, want %q", tc.in, p.String(), tc.want)
		}
	}
	if err := p.Set("sometimes"); err == nil {
		t.Error("Set(\"sometimes\") accepted")
	}
	if err := p.Set("-1"); err == nil {
		t.Error("Set(\"-1\") accepted")
	}
}
