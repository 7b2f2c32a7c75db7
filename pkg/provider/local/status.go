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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type eventRecord struct {
	Name string    `yaml:"name"`
	Time time.Time `yaml:"time"`
}

// appendEvent records one lifecycle event in the task's events file. The
// runner script appends to the same file with compatible formatting.
func (p *LocalProvider) appendEvent(dir, name string, at time.Time) error {
	events, _ := p.readEvents(dir)
	events = append(events, eventRecord{Name: name, Time: at.UTC().Truncate(time.Second)})
	data, err := yaml.Marshal(events)
	if err != nil {
		return err
	}
	return afero.WriteFile(p.fs, filepath.Join(dir, eventsFile), data, 0o644)
}

func (p *LocalProvider) readEvents(dir string) ([]eventRecord, error) {
	data, err := afero.ReadFile(p.fs, filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	var events []eventRecord
	if err := yaml.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// readFileTrimmed returns the trimmed content of a task file, or "" when the
// file does not exist.
func (p *LocalProvider) readFileTrimmed(dir, name string) string {
	data, err := afero.ReadFile(p.fs, filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// logTail returns the last few non-empty lines of the task's combined log,
// used as the failure detail when the runner recorded no explicit message.
func (p *LocalProvider) logTail(dir string, lines int) string {
	data, err := afero.ReadFile(p.fs, filepath.Join(dir, logFile))
	if err != nil {
		return ""
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	var kept []string
	for i := len(all) - 1; i >= 0 && len(kept) < lines; i-- {
		if strings.TrimSpace(all[i]) != "" {
			kept = append([]string{all[i]}, kept...)
		}
	}
	return strings.Join(kept, "\n")
}

// loadTask reconstructs one observed task from its attempt directory. Status
// is inferred purely from files: no status file means the task is still
// RUNNING, otherwise the file's content is authoritative.
func (p *LocalProvider) loadTask(jobID, taskSeg string, attempt int) (*provider.Task, error) {
	dir := p.taskDir(jobID, taskSeg, attempt)

	record, err := afero.ReadFile(p.fs, filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	jd, err := job.Unmarshal(record)
	if err != nil {
		return nil, err
	}

	t := &provider.Task{
		Identity: provider.Identity{
			JobID:       jd.Metadata.JobID,
			JobName:     jd.Metadata.JobName,
			UserID:      jd.Metadata.UserID,
			TaskAttempt: attempt,
		},
		Timing:       provider.Timing{CreateTime: jd.Metadata.CreateTime},
		State:        provider.State{Status: provider.StatusRunning},
		ProviderName: ProviderName,
		Attributes:   map[string]interface{}{"task-dir": dir},
	}
	if taskSeg != implicitTaskDir {
		t.Identity.TaskID = taskSeg
	}

	if len(jd.Tasks) > 0 {
		desc := jd.Tasks[0]
		if !desc.Metadata.CreateTime.IsZero() {
			t.Timing.CreateTime = desc.Metadata.CreateTime
		}
		t.Logging = desc.Resources.LoggingPath
		if t.Logging == "" {
			t.Logging = desc.Resources.Logging
		}
		t.Params = taskParamMaps(jd.Params, desc.Params)
	} else {
		t.Params = taskParamMaps(jd.Params, job.Params{})
	}
	if t.Logging == "" {
		t.Logging = jd.Resources.LoggingPath
	}

	if s := p.readFileTrimmed(dir, statusFile); s != "" {
		t.State.Status = provider.Status(s)
	}
	t.State.Message = p.readFileTrimmed(dir, statusMessageFile)
	if t.State.Status == provider.StatusFailure {
		t.State.Detail = p.logTail(dir, 5)
		if t.State.Message == "" {
			t.State.Message = t.State.Detail
		}
	}

	if s := p.readFileTrimmed(dir, endTimeFile); s != "" {
		if end, err := time.Parse(time.RFC3339, s); err == nil {
			t.Timing.EndTime = end
		}
	}

	if events, err := p.readEvents(dir); err == nil {
		for _, e := range events {
			t.Events = append(t.Events, provider.Event{Name: e.Name, Time: e.Time})
			if e.Name == "running" && t.Timing.StartTime.IsZero() {
				t.Timing.StartTime = e.Time
			}
		}
	}

	for _, name := range []string{statusFile, logFile, metaFile} {
		if info, err := p.fs.Stat(filepath.Join(dir, name)); err == nil {
			if info.ModTime().After(t.Timing.LastUpdate) {
				t.Timing.LastUpdate = info.ModTime()
			}
		}
	}

	if pid := p.readFileTrimmed(dir, pidFile); pid != "" {
		if n, err := strconv.Atoi(pid); err == nil {
			t.Attributes["pid"] = n
		}
	}
	return t, nil
}

// taskParamMaps flattens the job-level and task-level parameter bindings
// into the canonical display maps. Task-level bindings are disjoint from
// job-level ones by construction.
func taskParamMaps(jobParams, taskParams job.Params) provider.TaskParams {
	out := provider.TaskParams{
		Labels:  map[string]string{},
		Envs:    map[string]string{},
		Inputs:  map[string]string{},
		Outputs: map[string]string{},
	}
	fill := func(ps job.Params) {
		for _, l := range ps.Labels {
			out.Labels[l.Name] = l.Value
		}
		for _, e := range ps.Envs {
			out.Envs[e.Name] = e.Value
		}
		for _, f := range ps.Inputs {
			out.Inputs[f.Name] = f.URI.String()
		}
		for _, f := range ps.Outputs {
			out.Outputs[f.Name] = f.URI.String()
		}
	}
	fill(jobParams)
	fill(taskParams)
	return out
}

// loadJobTasks loads every task attempt of one job, most recent first.
// Unreadable attempt directories are skipped rather than failing the whole
// listing.
func (p *LocalProvider) loadJobTasks(jobID string) []*provider.Task {
	var tasks []*provider.Task
	jobDir := filepath.Join(p.root, jobID)
	segs, err := afero.ReadDir(p.fs, jobDir)
	if err != nil {
		return nil
	}
	for _, seg := range segs {
		if !seg.IsDir() {
			continue
		}
		attempts, err := afero.ReadDir(p.fs, filepath.Join(jobDir, seg.Name()))
		if err != nil {
			continue
		}
		for _, a := range attempts {
			if !a.IsDir() {
				continue
			}
			attempt, err := strconv.Atoi(a.Name())
			if err != nil {
				continue
			}
			t, err := p.loadTask(jobID, seg.Name(), attempt)
			if err != nil {
				logging.Debug("skipping unreadable task %s/%s/%d: %v", jobID, seg.Name(), attempt, err)
				continue
			}
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return provider.MoreRecent(tasks[i], tasks[j]) })
	return tasks
}

// LookupJobTasks enumerates the on-disk job tree, applies the canonical
// query filters, and returns tasks most recent first. Per-job listings are
// individually sorted and combined with a k-way merge.
func (p *LocalProvider) LookupJobTasks(ctx context.Context, q provider.Query) ([]*provider.Task, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(p.fs, p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var streams []provider.TaskStream
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tasks := p.loadJobTasks(e.Name())
		if len(tasks) > 0 {
			streams = append(streams, provider.NewSliceStream(tasks))
		}
	}

	var out []*provider.Task
	for _, t := range provider.MergeSorted(provider.MoreRecent, streams...) {
		if !q.Matches(t) {
			continue
		}
		out = append(out, t)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
