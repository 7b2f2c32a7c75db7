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

// Package local runs each task as a detached docker container on the
// submitting machine, with all task state kept as plain files under a
// per-attempt directory. There is no control plane; status is inferred
// from file presence and content.
package local

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/params"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/DataBiosphere/dsub-sub000/pkg/shell"
	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ProviderName is the name this backend reports on every task.
const ProviderName = "local"

// DefaultRoot is the on-disk job tree relative to the user's home directory.
const DefaultRoot = ".batch/local"

// Per-attempt file names. The status file's absence means the task is still
// RUNNING; its content is authoritative once present.
const (
	metaFile          = "meta.yaml"
	runnerFile        = "runner.sh"
	statusFile        = "status"
	statusMessageFile = "status-message"
	endTimeFile       = "end-time"
	eventsFile        = "events.yaml"
	pidFile           = "pid"
	dieFile           = "die"
	logFile           = "log"
	dataDir           = "data"
	scriptDir         = "script"
)

// implicitTaskDir names the directory segment of a job's single implicit
// task, which has no numeric task id.
const implicitTaskDir = "task"

var jobNameCharRe = regexp.MustCompile(`[^a-z0-9-]`)

// LocalProvider implements the Provider interface against the local
// filesystem and docker engine.
type LocalProvider struct {
	root string
	fs   afero.Fs

	// launch and kill are seams over the process-level side effects so the
	// file protocol can be tested without a docker engine.
	launch func(logPath, runnerPath string) (int, error)
	kill   func(containerName string, pid int) []string
}

// New returns a provider rooted at dir, or at DefaultRoot under the user's
// home directory when dir is empty.
func New(dir string) (*LocalProvider, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultRoot)
	}
	return NewWithFs(dir, afero.NewOsFs()), nil
}

// NewWithFs returns a provider rooted at dir on the given filesystem.
func NewWithFs(dir string, fsys afero.Fs) *LocalProvider {
	return &LocalProvider{
		root:   dir,
		fs:     fsys,
		launch: launchDetached,
		kill:   killTask,
	}
}

func (p *LocalProvider) Name() string { return ProviderName }

// PrepareJobMetadata derives the job's identifying metadata before
// submission. The job id embeds a truncated job name, the user id, and a
// timestamp plus random suffix so ids sort roughly by submission time while
// staying unique.
func (p *LocalProvider) PrepareJobMetadata(scriptName, jobName, userID string) (job.Metadata, error) {
	name := jobName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(scriptName), filepath.Ext(scriptName))
	}
	if userID == "" {
		userID = os.Getenv("USER")
		if userID == "" {
			userID = "unknown"
		}
	}

	prefix := sanitizeJobName(name)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	now := time.Now()
	jobID := fmt.Sprintf("%s--%s--%s-%s",
		prefix, userID, now.Format("060102-150405"), uuid.NewString()[:8])

	return job.Metadata{
		JobID:      jobID,
		JobName:    name,
		UserID:     userID,
		CreateTime: now,
		Version:    job.Version,
	}, nil
}

// sanitizeJobName lowercases the name and maps everything outside [a-z0-9-]
// to a dash. Names that do not start with a letter get a "job-" prefix so
// downstream label values stay valid.
func sanitizeJobName(name string) string {
	s := jobNameCharRe.ReplaceAllString(strings.ToLower(name), "-")
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = "job-" + s
	}
	return strings.Trim(s, "-")
}

// taskDirSegment is the directory name of a task within its job tree.
func taskDirSegment(t job.TaskMetadata) string {
	if t.TaskID == nil {
		return implicitTaskDir
	}
	return strconv.Itoa(*t.TaskID)
}

// containerName uniquely names a task attempt's docker container.
func containerName(jobID, taskSeg string, attempt int) string {
	return jobID + "." + taskSeg + "." + strconv.Itoa(attempt)
}

func (p *LocalProvider) taskDir(jobID, taskSeg string, attempt int) string {
	return filepath.Join(p.root, jobID, taskSeg, strconv.Itoa(attempt))
}

// SubmitJob stages and launches every task of the job. Launching is
// non-blocking: each task's runner script is started as a detached process
// and the method returns as soon as all tasks are staged. With
// skipIfOutputPresent, tasks whose declared outputs already exist are not
// launched; if that skips every task the NoJob sentinel is returned.
func (p *LocalProvider) SubmitJob(ctx context.Context, jd *job.JobDescriptor, skipIfOutputPresent bool) (provider.SubmitResult, error) {
	if err := p.validateJob(jd); err != nil {
		return provider.SubmitResult{}, err
	}
	jd.ResolveAll()

	launchable := jd.Tasks
	if skipIfOutputPresent {
		launchable = nil
		for _, t := range jd.Tasks {
			if p.outputsPresent(jd, t) {
				logging.Info("skipping task %q of job %q: outputs already present",
					taskDirSegment(t.Metadata), jd.Metadata.JobName)
				continue
			}
			launchable = append(launchable, t)
		}
		if len(launchable) == 0 {
			return provider.SubmitResult{JobID: provider.NoJob, UserID: jd.Metadata.UserID}, nil
		}
	}

	result := provider.SubmitResult{
		JobID:  jd.Metadata.JobID,
		UserID: jd.Metadata.UserID,
	}
	for _, t := range launchable {
		if err := ctx.Err(); err != nil {
			return provider.SubmitResult{}, &provider.SubmissionError{Err: err}
		}
		if err := p.launchTask(jd, t); err != nil {
			return provider.SubmitResult{}, &provider.SubmissionError{Err: err}
		}
		result.TaskIDs = append(result.TaskIDs, t.Metadata.TaskIDString())
	}
	return result, nil
}

// validateJob rejects parameter combinations this backend cannot execute.
func (p *LocalProvider) validateJob(jd *job.JobDescriptor) error {
	if jd.Metadata.Script == nil || jd.Metadata.Script.Value == "" {
		return params.Validationf("job %q has no script to run", jd.Metadata.JobName)
	}
	check := func(ps job.Params) error {
		for _, m := range ps.Mounts {
			if m.Provider != params.FileProviderLocal {
				return params.Validationf("mount %q: provider %q is not supported by the local backend", m.Name, m.Provider)
			}
		}
		return nil
	}
	if err := check(jd.Params); err != nil {
		return err
	}
	for _, t := range jd.Tasks {
		if err := check(t.Params); err != nil {
			return err
		}
	}
	return nil
}

// outputsPresent reports whether every declared output of the task already
// exists. Only local outputs can be checked without a storage client; any
// remote output means the task must run.
func (p *LocalProvider) outputsPresent(jd *job.JobDescriptor, t job.TaskDescriptor) bool {
	outputs := append(append([]params.FileParam{}, jd.Params.Outputs...), t.Params.Outputs...)
	if len(outputs) == 0 {
		return false
	}
	for _, o := range outputs {
		if o.Provider != params.FileProviderLocal {
			return false
		}
		if o.Recursive {
			ok, err := afero.DirExists(p.fs, filepath.FromSlash(o.URI.String()))
			if err != nil || !ok {
				return false
			}
			continue
		}
		// A wildcard basename is folded into a directory-form URI at parse
		// time; presence means at least one file matches the pattern, not
		// that the directory exists.
		pattern := o.URI.String()
		if base := path.Base(strings.TrimPrefix(o.Value, "file://")); strings.Contains(base, "*") {
			pattern = o.URI.Path + base
		}
		matches, err := afero.Glob(p.fs, filepath.FromSlash(pattern))
		if err != nil || len(matches) == 0 {
			return false
		}
	}
	return true
}

// launchTask stages one task attempt's directory and starts its runner.
// The attempt directory is exclusively owned: a pre-existing directory for
// the same (job-id, task-id, attempt) key is an error, never reused.
func (p *LocalProvider) launchTask(jd *job.JobDescriptor, t job.TaskDescriptor) error {
	seg := taskDirSegment(t.Metadata)
	dir := p.taskDir(jd.Metadata.JobID, seg, t.Metadata.TaskAttempt)

	if ok, _ := afero.DirExists(p.fs, dir); ok {
		return fmt.Errorf("task directory %q already exists", dir)
	}
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create task directory %q: %w", dir, err)
	}

	record, err := jd.WithTasks(t).Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize job record: %w", err)
	}
	if err := afero.WriteFile(p.fs, filepath.Join(dir, metaFile), record, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", metaFile, err)
	}

	scriptPath := filepath.Join(dir, dataDir, scriptDir, jd.Metadata.Script.Name)
	if err := p.fs.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(p.fs, scriptPath, []byte(jd.Metadata.Script.Value), 0o755); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}

	inputs := append(append([]params.FileParam{}, jd.Params.Inputs...), t.Params.Inputs...)
	outputs := append(append([]params.FileParam{}, jd.Params.Outputs...), t.Params.Outputs...)
	mounts := append(append([]params.FileParam{}, jd.Params.Mounts...), t.Params.Mounts...)
	envs := append(append([]params.EnvParam{}, jd.Params.Envs...), t.Params.Envs...)

	for _, f := range append(append([]params.FileParam{}, inputs...), outputs...) {
		if f.DockerPath == "" {
			continue
		}
		hostDir := filepath.Join(dir, dataDir, filepath.FromSlash(dockerDirOf(f)))
		if err := p.fs.MkdirAll(hostDir, 0o755); err != nil {
			return err
		}
	}

	if err := p.stageLocalRecursiveInputs(dir, inputs); err != nil {
		return err
	}

	runner, err := renderRunner(runnerSpec{
		TaskDir:       dir,
		DataDir:       filepath.Join(dir, dataDir),
		ContainerName: containerName(jd.Metadata.JobID, seg, t.Metadata.TaskAttempt),
		Image:         t.Resources.Image,
		Workdir:       params.DataMountPoint,
		Script:        params.DataMountPoint + "/" + scriptDir + "/" + jd.Metadata.Script.Name,
		Envs:          envs,
		Mounts:        mounts,
		Localize:      localizeCommands(filepath.Join(dir, dataDir), inputs),
		Delocalize:    delocalizeCommands(filepath.Join(dir, dataDir), outputs, dir, t.Resources.LoggingPath),
	})
	if err != nil {
		return err
	}
	runnerPath := filepath.Join(dir, runnerFile)
	if err := afero.WriteFile(p.fs, runnerPath, []byte(runner), 0o755); err != nil {
		return fmt.Errorf("failed to write %s: %w", runnerFile, err)
	}

	if err := p.appendEvent(dir, "start", time.Now()); err != nil {
		return err
	}

	pid, err := p.launch(filepath.Join(dir, logFile), runnerPath)
	if err != nil {
		return fmt.Errorf("failed to launch task runner: %w", err)
	}
	if err := afero.WriteFile(p.fs, filepath.Join(dir, pidFile), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to record runner pid: %w", err)
	}
	logrus.Debugf("launched task %s of job %s (pid %d) from %s", seg, jd.Metadata.JobID, pid, dir)
	return nil
}

// stageLocalRecursiveInputs copies local directory-tree inputs into the data
// directory before launch, preserving permissions and symlinks. Remote inputs
// and single files are localized by the runner script instead.
func (p *LocalProvider) stageLocalRecursiveInputs(dir string, inputs []params.FileParam) error {
	for _, in := range inputs {
		if !in.Recursive || in.Provider != params.FileProviderLocal {
			continue
		}
		src := filepath.Clean(filepath.FromSlash(in.URI.String()))
		dst := filepath.Join(dir, dataDir, filepath.FromSlash(strings.TrimSuffix(in.DockerPath, "/")))
		if _, ok := p.fs.(*afero.OsFs); ok {
			if err := copy.Copy(src, dst); err != nil {
				return fmt.Errorf("failed to stage input %q from %q: %w", in.Name, src, err)
			}
			continue
		}
		if err := copyTreeAfero(p.fs, src, dst); err != nil {
			return fmt.Errorf("failed to stage input %q from %q: %w", in.Name, src, err)
		}
	}
	return nil
}

// copyTreeAfero is the staging fallback for non-OS filesystems.
func copyTreeAfero(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsys.MkdirAll(target, info.Mode().Perm())
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		return afero.WriteFile(fsys, target, data, info.Mode().Perm())
	})
}

// dockerDirOf returns the directory part of a file parameter's container
// path, relative to the data mount point.
func dockerDirOf(f params.FileParam) string {
	dp := strings.TrimSuffix(f.DockerPath, "/")
	if f.Recursive || strings.HasSuffix(f.DockerPath, "/") {
		return dp
	}
	if i := strings.LastIndex(dp, "/"); i >= 0 {
		return dp[:i]
	}
	return ""
}

// launchDetached starts the runner in its own session with combined output
// redirected to the log file, and returns its pid.
func launchDetached(logPath, runnerPath string) (int, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return shell.StartDetached(f, "/bin/bash", runnerPath)
}
