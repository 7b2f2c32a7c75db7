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
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

// runnerTemplate is the Go template for the generated per-task driver
// script. The driver localizes inputs, runs the container in the foreground
// of a detached session, checks the cancel sentinel before delocalizing, and
// records the terminal status files that status inference reads.
const runnerTemplate = `#!/bin/bash
# Generated task driver for {{.ContainerName}}. Do not edit.

readonly TASK_DIR="{{.TaskDir}}"

write_event() {
  printf -- "- name: %s\n  time: %s\n" "$1" "$(date -u +%Y-%m-%dT%H:%M:%SZ)" >> "${TASK_DIR}/events.yaml"
}

finish() {
  echo "$1" > "${TASK_DIR}/status"
  if [[ -n "$2" ]]; then
    echo "$2" > "${TASK_DIR}/status-message"
  fi
  date -u +%Y-%m-%dT%H:%M:%SZ > "${TASK_DIR}/end-time"
  write_event "$3"
}

fail() {
  finish FAILURE "$1" fail
  exit 1
}
{{if .Localize}}
write_event localizing
{{- range .Localize}}
{{.}}
{{- end}}
{{end}}
write_event running
docker run \
  --name "{{.ContainerName}}" \
  --workdir "{{.Workdir}}" \
  -v "{{.DataDir}}:{{.MountPoint}}" \
{{- range .Mounts}}
  -v "{{.Host}}:{{.Container}}" \
{{- end}}
{{- range .Envs}}
  --env {{.Name}}="{{.Value}}" \
{{- end}}
  "{{.Image}}" "{{.Script}}"
docker_status=$?

if [[ -f "${TASK_DIR}/die" ]]; then
  # Canceled: the cancel path records the terminal status. Never delocalize
  # partial outputs.
  exit 0
fi
if [[ "${docker_status}" -ne 0 ]]; then
  fail "task script exited with status ${docker_status}"
fi
{{if .Delocalize}}
write_event delocalizing
{{- range .Delocalize}}
{{.}}
{{- end}}
{{end}}
finish SUCCESS "" ok
`

type mountBinding struct {
	Host      string
	Container string
}

// runnerSpec carries everything the driver template needs for one task
// attempt.
type runnerSpec struct {
	TaskDir       string
	DataDir       string
	ContainerName string
	Image         string
	Workdir       string
	Script        string
	Envs          []params.EnvParam
	Mounts        []params.FileParam
	Localize      []string
	Delocalize    []string
}

type runnerData struct {
	TaskDir       string
	DataDir       string
	ContainerName string
	Image         string
	Workdir       string
	MountPoint    string
	Script        string
	Envs          []params.EnvParam
	Mounts        []mountBinding
	Localize      []string
	Delocalize    []string
}

func renderRunner(spec runnerSpec) (string, error) {
	data := runnerData{
		TaskDir:       spec.TaskDir,
		DataDir:       spec.DataDir,
		ContainerName: spec.ContainerName,
		Image:         spec.Image,
		Workdir:       spec.Workdir,
		MountPoint:    params.DataMountPoint,
		Script:        spec.Script,
		Envs:          spec.Envs,
		Localize:      spec.Localize,
		Delocalize:    spec.Delocalize,
	}
	for _, m := range spec.Mounts {
		data.Mounts = append(data.Mounts, mountBinding{
			Host:      filepath.FromSlash(strings.TrimSuffix(m.URI.String(), "/")),
			Container: strings.TrimSuffix(m.ContainerPath(), "/"),
		})
	}

	tmpl, err := template.New("runner").Parse(runnerTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse runner template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render runner script: %w", err)
	}
	return buf.String(), nil
}

// localizeCommands builds the shell lines that copy each input into the data
// directory before the container starts. Local recursive inputs are staged
// by the submitter and need no command here.
func localizeCommands(hostData string, inputs []params.FileParam) []string {
	var cmds []string
	for _, in := range inputs {
		uri := in.URI.String()
		destDir := hostData + "/" + dockerDirOf(in)
		switch {
		case in.Provider == params.FileProviderGCS && in.Recursive:
			cmds = append(cmds, guarded(
				fmt.Sprintf("gsutil -q -m rsync -r '%s' '%s/'", uri, destDir),
				"failed to localize "+in.Name))
		case in.Provider == params.FileProviderGCS:
			cmds = append(cmds, guarded(
				fmt.Sprintf("gsutil -q cp '%s' '%s/'", uri, destDir),
				"failed to localize "+in.Name))
		case in.Recursive:
			// Staged at submission time.
		default:
			// Unquoted source so wildcard basenames expand in the shell.
			cmds = append(cmds, guarded(
				fmt.Sprintf("cp %s '%s/'", filepath.FromSlash(uri), destDir),
				"failed to localize "+in.Name))
		}
	}
	return cmds
}

// delocalizeCommands builds the shell lines that copy each output from the
// data directory to its destination after the container exits, plus the
// final copy of the combined log to its resolved destination.
func delocalizeCommands(hostData string, outputs []params.FileParam, taskDir, loggingPath string) []string {
	var cmds []string
	for _, out := range outputs {
		src := hostData + "/" + strings.TrimSuffix(out.DockerPath, "/")
		destDir := strings.TrimSuffix(out.URI.Path, "/")
		switch {
		case out.Provider == params.FileProviderGCS && out.Recursive:
			cmds = append(cmds, guarded(
				fmt.Sprintf("gsutil -q -m rsync -r '%s' '%s'", src, strings.TrimSuffix(out.URI.String(), "/")),
				"failed to delocalize "+out.Name))
		case out.Provider == params.FileProviderGCS:
			cmds = append(cmds, guarded(
				fmt.Sprintf("gsutil -q cp %s '%s/'", src, destDir),
				"failed to delocalize "+out.Name))
		case out.Recursive:
			dst := filepath.FromSlash(strings.TrimSuffix(out.URI.String(), "/"))
			cmds = append(cmds,
				guarded(fmt.Sprintf("mkdir -p '%s'", dst), "failed to delocalize "+out.Name),
				guarded(fmt.Sprintf("cp -R '%s/.' '%s'", src, dst), "failed to delocalize "+out.Name))
		default:
			dst := filepath.FromSlash(destDir)
			cmds = append(cmds,
				guarded(fmt.Sprintf("mkdir -p '%s'", dst), "failed to delocalize "+out.Name),
				// Unquoted source so wildcard basenames expand in the shell.
				guarded(fmt.Sprintf("cp %s '%s/'", src, dst), "failed to delocalize "+out.Name))
		}
	}
	if loggingPath != "" {
		if strings.HasPrefix(loggingPath, "gs://") {
			cmds = append(cmds, fmt.Sprintf("gsutil -q cp '%s/%s' '%s' || true", taskDir, logFile, loggingPath))
		} else {
			dst := filepath.FromSlash(loggingPath)
			cmds = append(cmds,
				fmt.Sprintf("mkdir -p '%s'", filepath.Dir(dst)),
				fmt.Sprintf("cp '%s/%s' '%s' || true", taskDir, logFile, dst))
		}
	}
	return cmds
}

func guarded(cmd, message string) string {
	return fmt.Sprintf("%s || fail '%s'", cmd, message)
}
