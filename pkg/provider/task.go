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
	"strconv"
	"time"
)

// Status is a task's lifecycle state. RUNNING is the initial state of every
// newly observed task; the other three are terminal.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusCanceled Status = "CANCELED"
)

// IsTerminal reports whether no further state change is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCanceled:
		return true
	}
	return false
}

// Event is one recorded lifecycle occurrence of a task.
type Event struct {
	Name string
	Time time.Time
}

// Identity is the task's identifying field group.
type Identity struct {
	JobID       string
	JobName     string
	UserID      string
	TaskID      string // empty for the implicit task
	TaskAttempt int
}

// Timing is the task's timestamp field group.
type Timing struct {
	CreateTime time.Time
	StartTime  time.Time
	EndTime    time.Time
	LastUpdate time.Time
}

// State is the task's status field group.
type State struct {
	Status  Status
	Message string
	Detail  string
}

// TaskParams are the task's effective parameter bindings as plain maps.
type TaskParams struct {
	Labels  map[string]string
	Envs    map[string]string
	Inputs  map[string]string
	Outputs map[string]string
}

// Task is the backend-neutral description of one observed task. Typed field
// groups cover the canonical vocabulary; Attributes carries provider-specific
// extension fields.
type Task struct {
	Identity     Identity
	Timing       Timing
	State        State
	Events       []Event
	Params       TaskParams
	Logging      string
	ProviderName string
	Attributes   map[string]interface{}
}

// Field is the single generic accessor over the canonical field vocabulary,
// for display layers that address fields by name. Unknown names fall through
// to the provider's extension attributes, then to def.
func (t *Task) Field(name string, def interface{}) interface{} {
	switch name {
	case "job-id":
		return t.Identity.JobID
	case "job-name":
		return t.Identity.JobName
	case "user-id":
		return t.Identity.UserID
	case "task-id":
		return t.Identity.TaskID
	case "task-attempt":
		return t.Identity.TaskAttempt
	case "task-status":
		return string(t.State.Status)
	case "status-message":
		return t.State.Message
	case "status-detail":
		return t.State.Detail
	case "create-time":
		return t.Timing.CreateTime
	case "start-time":
		return t.Timing.StartTime
	case "end-time":
		return t.Timing.EndTime
	case "last-update":
		return t.Timing.LastUpdate
	case "events":
		return t.Events
	case "labels":
		return t.Params.Labels
	case "envs":
		return t.Params.Envs
	case "inputs":
		return t.Params.Inputs
	case "outputs":
		return t.Params.Outputs
	case "logging":
		return t.Logging
	case "provider":
		return t.ProviderName
	case "provider-attributes":
		return t.Attributes
	}
	if v, ok := t.Attributes[name]; ok {
		return v
	}
	return def
}

// MoreRecent orders tasks most recent first: create-time descending, then
// task-id descending, then task-attempt descending. The secondary keys make
// same-second timestamp ties deterministic.
func MoreRecent(a, b *Task) bool {
	if !a.Timing.CreateTime.Equal(b.Timing.CreateTime) {
		return a.Timing.CreateTime.After(b.Timing.CreateTime)
	}
	if a.Identity.TaskID != b.Identity.TaskID {
		return taskIDLess(b.Identity.TaskID, a.Identity.TaskID)
	}
	return a.Identity.TaskAttempt > b.Identity.TaskAttempt
}

// taskIDLess compares task ids numerically when both are integers, falling
// back to string order; the implicit task (empty id) sorts first.
func taskIDLess(a, b string) bool {
	if a == "" || b == "" {
		return a == "" && b != ""
	}
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
