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
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

// Query selects tasks for lookup or deletion. Every field is optional: an
// empty list or one containing the "*" wildcard matches everything.
type Query struct {
	Statuses []Status
	JobIDs   []string
	JobNames []string
	UserIDs  []string
	TaskIDs  []string
	Labels   map[string]string

	// CreateTimeMin, when set, excludes tasks created before it.
	CreateTimeMin time.Time

	// Limit caps the number of returned tasks; zero means unlimited.
	Limit int
}

// Validate rejects query shapes with ambiguous semantics. Filtering by
// job id and job name simultaneously is an AND across two identity
// dimensions and is always a caller mistake.
func (q Query) Validate() error {
	if matchesSpecific(q.JobIDs) && matchesSpecific(q.JobNames) {
		return params.Validationf("cannot filter by both job id and job name")
	}
	return nil
}

func matchesSpecific(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v == "*" {
			return false
		}
	}
	return true
}

func matchString(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == "*" || f == value {
			return true
		}
	}
	return false
}

func matchStatus(filter []Status, value Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == "*" || f == value {
			return true
		}
	}
	return false
}

// Matches reports whether the task satisfies every set filter.
func (q Query) Matches(t *Task) bool {
	if !matchStatus(q.Statuses, t.State.Status) {
		return false
	}
	if !matchString(q.JobIDs, t.Identity.JobID) {
		return false
	}
	if !matchString(q.JobNames, t.Identity.JobName) {
		return false
	}
	if !matchString(q.UserIDs, t.Identity.UserID) {
		return false
	}
	if !matchString(q.TaskIDs, t.Identity.TaskID) {
		return false
	}
	for name, want := range q.Labels {
		if t.Params.Labels[name] != want {
			return false
		}
	}
	if !q.CreateTimeMin.IsZero() && t.Timing.CreateTime.Before(q.CreateTimeMin) {
		return false
	}
	return true
}
