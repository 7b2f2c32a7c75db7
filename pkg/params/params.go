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

// Package params defines the typed value objects a job submission is built
// from (environment variables, labels, file parameters) and the URI-to-
// container-path rewriting that backs localization and delocalization.
package params

import (
	"regexp"
	"strings"
)

// FileProvider identifies the storage system a file parameter lives on.
type FileProvider string

const (
	// FileProviderLocal is the submitting machine's filesystem.
	FileProviderLocal FileProvider = "local"
	// FileProviderGCS is Google Cloud Storage.
	FileProviderGCS FileProvider = "google-cloud-storage"
)

// FileParamKind distinguishes the three file-parameter variants.
type FileParamKind int

const (
	KindInput FileParamKind = iota
	KindOutput
	KindMount
)

// String returns the kind's lowercase name, which is also the root of its
// container paths.
func (k FileParamKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindMount:
		return "mount"
	}
	return "unknown"
}

// DataMountPoint is where the task's data directory is mounted inside the
// container. Container paths handed to the user script are rooted here.
const DataMountPoint = "/mnt/data"

var (
	envNameRe    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	labelNameRe  = regexp.MustCompile(`^[a-z][-_a-z0-9]{0,62}$`)
	labelValueRe = regexp.MustCompile(`^[-_a-z0-9]{0,63}$`)
)

// reservedLabels are names the system generates itself; user-supplied labels
// may not shadow them.
var reservedLabels = map[string]bool{
	"job-id":       true,
	"job-name":     true,
	"user-id":      true,
	"task-id":      true,
	"task-attempt": true,
	"dsub-version": true,
}

// EnvParam is an environment variable for the task's container.
type EnvParam struct {
	Name  string
	Value string
}

// NewEnvParam validates the name as a POSIX shell identifier.
func NewEnvParam(name, value string) (EnvParam, error) {
	if !envNameRe.MatchString(name) {
		return EnvParam{}, Validationf("invalid environment variable name %q", name)
	}
	return EnvParam{Name: name, Value: value}, nil
}

// LabelParam is a key/value pair attached to a job or task for filtering.
type LabelParam struct {
	Name  string
	Value string
}

// NewLabelParam validates label naming rules. System-generated labels may use
// the reserved identity names; user labels may not.
func NewLabelParam(name, value string, systemGenerated bool) (LabelParam, error) {
	if !labelNameRe.MatchString(name) {
		return LabelParam{}, Validationf("invalid label name %q: must be 1-63 characters, start with a lowercase letter, and contain only lowercase letters, digits, '-', and '_'", name)
	}
	if !labelValueRe.MatchString(value) {
		return LabelParam{}, Validationf("invalid label value %q for label %q", value, name)
	}
	if !systemGenerated && reservedLabels[name] {
		return LabelParam{}, Validationf("label name %q is reserved", name)
	}
	return LabelParam{Name: name, Value: value}, nil
}

// URI is a normalized storage path split into its directory part and
// basename. Path always ends in a separator when Basename is empty; the full
// URI is the concatenation of the two.
type URI struct {
	Path     string
	Basename string
}

func (u URI) String() string {
	return u.Path + u.Basename
}

// IsDir reports whether the URI names a directory rather than an object.
func (u URI) IsDir() bool {
	return u.Basename == "" && strings.HasSuffix(u.Path, "/")
}

// FileParam describes one input, output, or mount binding.
//
// Value is the user-supplied literal; URI is the normalized remote or local
// path; DockerPath is the task-relative container path (without the
// DataMountPoint prefix).
type FileParam struct {
	Kind       FileParamKind
	Name       string
	Value      string
	DockerPath string
	URI        URI
	Recursive  bool
	Provider   FileProvider
	DiskSize   string
	DiskType   string
}

// ContainerPath returns the absolute path of the parameter inside the task's
// container.
func (f FileParam) ContainerPath() string {
	if f.DockerPath == "" {
		return ""
	}
	return DataMountPoint + "/" + f.DockerPath
}
