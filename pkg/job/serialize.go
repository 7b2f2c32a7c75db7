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
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

// The serialized job record is the system of record for a submission: a
// nested mapping/sequence structure with no executable content. Consumers
// must ignore unknown keys, so decoding goes through permissive structs.

type jobRecord struct {
	JobID            string            `yaml:"job-id"`
	JobName          string            `yaml:"job-name"`
	UserID           string            `yaml:"user-id"`
	CreateTime       string            `yaml:"create-time"`
	Version          string            `yaml:"dsub-version"`
	ScriptName       string            `yaml:"script-name,omitempty"`
	Script           string            `yaml:"script,omitempty"`
	Logging          string            `yaml:"logging,omitempty"`
	Labels           map[string]string `yaml:"labels,omitempty"`
	Envs             map[string]string `yaml:"envs,omitempty"`
	Inputs           map[string]string `yaml:"inputs,omitempty"`
	InputRecursives  map[string]string `yaml:"input-recursives,omitempty"`
	Outputs          map[string]string `yaml:"outputs,omitempty"`
	OutputRecursives map[string]string `yaml:"output-recursives,omitempty"`
	Mounts           map[string]string `yaml:"mounts,omitempty"`
	Tasks            []taskRecord      `yaml:"tasks"`
}

type taskRecord struct {
	TaskID           *int              `yaml:"task-id"`
	TaskAttempt      int               `yaml:"task-attempt,omitempty"`
	CreateTime       string            `yaml:"create-time,omitempty"`
	LoggingPath      string            `yaml:"logging-path,omitempty"`
	Labels           map[string]string `yaml:"labels,omitempty"`
	Envs             map[string]string `yaml:"envs,omitempty"`
	Inputs           map[string]string `yaml:"inputs,omitempty"`
	InputRecursives  map[string]string `yaml:"input-recursives,omitempty"`
	Outputs          map[string]string `yaml:"outputs,omitempty"`
	OutputRecursives map[string]string `yaml:"output-recursives,omitempty"`
}

func fileMaps(files []params.FileParam) (flat, recursive map[string]string) {
	for _, f := range files {
		if f.Recursive {
			if recursive == nil {
				recursive = make(map[string]string)
			}
			recursive[f.Name] = f.Value
		} else {
			if flat == nil {
				flat = make(map[string]string)
			}
			flat[f.Name] = f.Value
		}
	}
	return flat, recursive
}

func envMap(envs []params.EnvParam) map[string]string {
	if len(envs) == 0 {
		return nil
	}
	m := make(map[string]string, len(envs))
	for _, e := range envs {
		m[e.Name] = e.Value
	}
	return m
}

func labelMap(labels []params.LabelParam) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	m := make(map[string]string, len(labels))
	for _, l := range labels {
		m[l.Name] = l.Value
	}
	return m
}

// Marshal serializes the descriptor to its YAML record.
func (j *JobDescriptor) Marshal() ([]byte, error) {
	rec := jobRecord{
		JobID:      j.Metadata.JobID,
		JobName:    j.Metadata.JobName,
		UserID:     j.Metadata.UserID,
		CreateTime: j.Metadata.CreateTime.Format(time.RFC3339Nano),
		Version:    j.Metadata.Version,
		Logging:    j.Resources.Logging,
		Labels:     labelMap(j.Params.Labels),
		Envs:       envMap(j.Params.Envs),
	}
	if j.Metadata.Script != nil {
		rec.ScriptName = j.Metadata.Script.Name
		rec.Script = j.Metadata.Script.Value
	}
	rec.Inputs, rec.InputRecursives = fileMaps(j.Params.Inputs)
	rec.Outputs, rec.OutputRecursives = fileMaps(j.Params.Outputs)
	rec.Mounts = mountMap(j.Params.Mounts)

	for _, t := range j.Tasks {
		tr := taskRecord{
			TaskID:      t.Metadata.TaskID,
			TaskAttempt: t.Metadata.TaskAttempt,
			CreateTime:  t.Metadata.CreateTime.Format(time.RFC3339Nano),
			LoggingPath: t.Resources.LoggingPath,
			Labels:      labelMap(t.Params.Labels),
			Envs:        envMap(t.Params.Envs),
		}
		tr.Inputs, tr.InputRecursives = fileMaps(t.Params.Inputs)
		tr.Outputs, tr.OutputRecursives = fileMaps(t.Params.Outputs)
		rec.Tasks = append(rec.Tasks, tr)
	}
	return yaml.Marshal(&rec)
}

// mountMap folds mounts into a single map; mounts are always directory-form
// so the flat/recursive split does not apply.
func mountMap(mounts []params.FileParam) map[string]string {
	if len(mounts) == 0 {
		return nil
	}
	m := make(map[string]string, len(mounts))
	for _, f := range mounts {
		m[f.Name] = f.Value
	}
	return m
}

// Unmarshal reconstructs a descriptor from its YAML record. Unknown keys are
// ignored for forward compatibility; file parameters are re-derived from
// their recorded values, which reproduces identical container paths.
func Unmarshal(data []byte) (*JobDescriptor, error) {
	var rec jobRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode job record: %w", err)
	}

	meta := Metadata{
		JobID:   rec.JobID,
		JobName: rec.JobName,
		UserID:  rec.UserID,
		Version: rec.Version,
	}
	if rec.CreateTime != "" {
		t, err := time.Parse(time.RFC3339Nano, rec.CreateTime)
		if err != nil {
			return nil, fmt.Errorf("bad create-time in job record: %w", err)
		}
		meta.CreateTime = t
	}
	if rec.Script != "" || rec.ScriptName != "" {
		meta.Script = &Script{Name: rec.ScriptName, Value: rec.Script}
	}

	jobParams, err := paramsFromMaps(rec.Labels, rec.Envs, rec.Inputs, rec.InputRecursives, rec.Outputs, rec.OutputRecursives, rec.Mounts)
	if err != nil {
		return nil, err
	}

	jd := &JobDescriptor{
		Metadata:  meta,
		Params:    jobParams,
		Resources: Resources{Logging: rec.Logging},
	}
	for _, tr := range rec.Tasks {
		taskParams, err := paramsFromMaps(tr.Labels, tr.Envs, tr.Inputs, tr.InputRecursives, tr.Outputs, tr.OutputRecursives, nil)
		if err != nil {
			return nil, err
		}
		task := TaskDescriptor{
			Metadata: TaskMetadata{TaskID: tr.TaskID, TaskAttempt: tr.TaskAttempt},
			Params:   taskParams,
			Resources: Resources{
				Logging:     rec.Logging,
				LoggingPath: tr.LoggingPath,
			},
		}
		if tr.CreateTime != "" {
			t, err := time.Parse(time.RFC3339Nano, tr.CreateTime)
			if err != nil {
				return nil, fmt.Errorf("bad create-time in task record: %w", err)
			}
			task.Metadata.CreateTime = t
		}
		jd.Tasks = append(jd.Tasks, task)
	}
	return jd, nil
}

func paramsFromMaps(labels, envs, inputs, inputRecursives, outputs, outputRecursives, mounts map[string]string) (Params, error) {
	var p Params
	for _, name := range sortedKeys(labels) {
		l, err := params.NewLabelParam(name, labels[name], true)
		if err != nil {
			return Params{}, err
		}
		p.Labels = append(p.Labels, l)
	}
	for _, name := range sortedKeys(envs) {
		e, err := params.NewEnvParam(name, envs[name])
		if err != nil {
			return Params{}, err
		}
		p.Envs = append(p.Envs, e)
	}

	parser := params.NewParser()
	for _, name := range sortedKeys(inputs) {
		in, err := parser.ParseInput(name, inputs[name], false)
		if err != nil {
			return Params{}, err
		}
		p.Inputs = append(p.Inputs, in)
	}
	for _, name := range sortedKeys(inputRecursives) {
		in, err := parser.ParseInput(name, inputRecursives[name], true)
		if err != nil {
			return Params{}, err
		}
		p.Inputs = append(p.Inputs, in)
	}
	for _, name := range sortedKeys(outputs) {
		out, err := parser.ParseOutput(name, outputs[name], false)
		if err != nil {
			return Params{}, err
		}
		p.Outputs = append(p.Outputs, out)
	}
	for _, name := range sortedKeys(outputRecursives) {
		out, err := parser.ParseOutput(name, outputRecursives[name], true)
		if err != nil {
			return Params{}, err
		}
		p.Outputs = append(p.Outputs, out)
	}
	for _, name := range sortedKeys(mounts) {
		m, err := parser.ParseMount(name, mounts[name])
		if err != nil {
			return Params{}, err
		}
		p.Mounts = append(p.Mounts, m)
	}
	return p, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
