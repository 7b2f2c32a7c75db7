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

// Package job defines the provider-neutral job and task data model: a job is
// one user submission, holding one or more independently scheduled tasks.
package job

import (
	"strconv"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

// Version is recorded in every serialized job record under "dsub-version".
const Version = "0.1.0"

// Script is the user's executable payload.
type Script struct {
	Name  string
	Value string
}

// Metadata identifies a job.
type Metadata struct {
	JobID      string
	JobName    string
	UserID     string
	CreateTime time.Time
	Script     *Script
	Version    string
}

// TaskMetadata identifies one task within a job. A nil TaskID denotes the
// single implicit task of a job submitted without a task table. TaskAttempt
// is zero when retries are disabled.
type TaskMetadata struct {
	TaskID      *int
	TaskAttempt int
	CreateTime  time.Time
}

// Params groups the name-unique parameter sets of a job or task.
type Params struct {
	Labels  []params.LabelParam
	Envs    []params.EnvParam
	Inputs  []params.FileParam
	Outputs []params.FileParam
	Mounts  []params.FileParam
}

// Names returns every parameter name across all sets.
func (p Params) Names() []string {
	var names []string
	for _, l := range p.Labels {
		names = append(names, l.Name)
	}
	for _, e := range p.Envs {
		names = append(names, e.Name)
	}
	for _, f := range p.Inputs {
		names = append(names, f.Name)
	}
	for _, f := range p.Outputs {
		names = append(names, f.Name)
	}
	for _, f := range p.Mounts {
		names = append(names, f.Name)
	}
	return names
}

// TaskDescriptor is one task's metadata, resolved resources, and parameters.
type TaskDescriptor struct {
	Metadata  TaskMetadata
	Params    Params
	Resources Resources
}

// JobDescriptor is the aggregate submission model: job metadata and defaults
// plus the ordered task descriptors.
type JobDescriptor struct {
	Metadata  Metadata
	Params    Params
	Resources Resources
	Tasks     []TaskDescriptor
}

// New validates and assembles a JobDescriptor. When a task table is combined
// with command-line parameters, every task's parameter names must be disjoint
// from the job-level names; an overlap would make a container's environment
// ambiguous.
func New(meta Metadata, jobParams Params, res Resources, tasks []TaskDescriptor) (*JobDescriptor, error) {
	jobNames := make(map[string]bool)
	for _, n := range jobParams.Names() {
		jobNames[n] = true
	}
	for _, t := range tasks {
		for _, n := range t.Params.Names() {
			if jobNames[n] {
				return nil, params.Validationf("parameter %q is defined at both the job and task level", n)
			}
		}
	}
	if meta.Version == "" {
		meta.Version = Version
	}
	return &JobDescriptor{
		Metadata:  meta,
		Params:    jobParams,
		Resources: res,
		Tasks:     tasks,
	}, nil
}

// TaskFromRow converts a parsed task-table row into a task descriptor.
func TaskFromRow(row params.TaskRow, res Resources, createTime time.Time) TaskDescriptor {
	id := row.TaskID
	attempt := 0
	if res.Retries > 0 {
		attempt = 1
	}
	return TaskDescriptor{
		Metadata: TaskMetadata{TaskID: &id, TaskAttempt: attempt, CreateTime: createTime},
		Params: Params{
			Labels:  row.Labels,
			Envs:    row.Envs,
			Inputs:  row.Inputs,
			Outputs: row.Outputs,
		},
		Resources: res,
	}
}

// ImplicitTask builds the single task of a job submitted without a task
// table.
func ImplicitTask(res Resources, createTime time.Time) TaskDescriptor {
	attempt := 0
	if res.Retries > 0 {
		attempt = 1
	}
	return TaskDescriptor{
		Metadata:  TaskMetadata{TaskID: nil, TaskAttempt: attempt, CreateTime: createTime},
		Resources: res,
	}
}

// TaskIDString renders the task id for display and filtering; the implicit
// task renders as the empty string.
func (m TaskMetadata) TaskIDString() string {
	if m.TaskID == nil {
		return ""
	}
	return strconv.Itoa(*m.TaskID)
}
