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
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
)

func buildDescriptor(t *testing.T) *JobDescriptor {
	t.Helper()
	parser := params.NewParser()
	in, err := parser.ParseInput("READS", "gs://bucket/in/reads.bam", false)
	if err != nil {
		t.Fatal(err)
	}
	inRec, err := parser.ParseInput("REF", "gs://bucket/ref", true)
	if err != nil {
		t.Fatal(err)
	}
	out, err := parser.ParseOutput("RESULT", "gs://bucket/out/result.vcf", false)
	if err != nil {
		t.Fatal(err)
	}
	label, err := params.NewLabelParam("batch", "nightly", false)
	if err != nil {
		t.Fatal(err)
	}

	one := 1
	createTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	jd, err := New(
		Metadata{
			JobID:      "align--alice--260830",
			JobName:    "align",
			UserID:     "alice",
			CreateTime: createTime,
			Script:     &Script{Name: "align.sh", Value: "#!/bin/bash\necho hi\n"},
		},
		Params{
			Labels: []params.LabelParam{label},
			Envs:   []params.EnvParam{{Name: "MODE", Value: "fast"}},
		},
		Resources{Logging: "gs://bucket/logs"},
		[]TaskDescriptor{
			{
				Metadata: TaskMetadata{TaskID: &one, TaskAttempt: 1, CreateTime: createTime},
				Params: Params{
					Envs:    []params.EnvParam{{Name: "SAMPLE", Value: "s1"}},
					Inputs:  []params.FileParam{in, inRec},
					Outputs: []params.FileParam{out},
				},
				Resources: Resources{Logging: "gs://bucket/logs"},
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	jd.ResolveAll()
	return jd
}

func sortParams(p *Params) {
	sort.Slice(p.Labels, func(i, j int) bool { return p.Labels[i].Name < p.Labels[j].Name })
	sort.Slice(p.Envs, func(i, j int) bool { return p.Envs[i].Name < p.Envs[j].Name })
	sort.Slice(p.Inputs, func(i, j int) bool { return p.Inputs[i].Name < p.Inputs[j].Name })
	sort.Slice(p.Outputs, func(i, j int) bool { return p.Outputs[i].Name < p.Outputs[j].Name })
	sort.Slice(p.Mounts, func(i, j int) bool { return p.Mounts[i].Name < p.Mounts[j].Name })
}

func TestRoundTrip(t *testing.T) {
	jd := buildDescriptor(t)
	data, err := jd.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(jd.Metadata, got.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if got.Resources.Logging != jd.Resources.Logging {
		t.Errorf("logging = %q, want %q", got.Resources.Logging, jd.Resources.Logging)
	}
	if len(got.Tasks) != len(jd.Tasks) {
		t.Fatalf("got %d tasks, want %d", len(got.Tasks), len(jd.Tasks))
	}
	for i := range jd.Tasks {
		want, have := jd.Tasks[i], got.Tasks[i]
		if have.Resources.LoggingPath != want.Resources.LoggingPath {
			t.Errorf("task %d logging path = %q, want %q", i, have.Resources.LoggingPath, want.Resources.LoggingPath)
		}
		// Set ordering is not preserved; compare set equality.
		sortParams(&want.Params)
		sortParams(&have.Params)
		if diff := cmp.Diff(want.Params, have.Params); diff != "" {
			t.Errorf("task %d params mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestUnmarshalIgnoresUnknownKeys(t *testing.T) {
	record := "job-id: j1\n" +
		"job-name: test\n" +
		"user-id: alice\n" +
		"dsub-version: 0.1.0\n" +
		"some-future-key: {nested: value}\n" +
		"tasks:\n" +
		"- task-id: null\n" +
		"  another-future-key: 42\n"
	jd, err := Unmarshal([]byte(record))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if jd.Metadata.JobID != "j1" || jd.Metadata.UserID != "alice" {
		t.Errorf("metadata = %+v, want job-id j1, user-id alice", jd.Metadata)
	}
	if len(jd.Tasks) != 1 || jd.Tasks[0].Metadata.TaskID != nil {
		t.Errorf("tasks = %+v, want one task with null id", jd.Tasks)
	}
}

func TestMarshalKeepsNullTaskID(t *testing.T) {
	jd := &JobDescriptor{
		Metadata: Metadata{JobID: "j1", CreateTime: time.Now(), Version: Version},
		Tasks:    []TaskDescriptor{ImplicitTask(Resources{}, time.Now())},
	}
	data, err := jd.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Metadata.TaskID != nil {
		t.Fatalf("round-tripped tasks = %+v, want one implicit task", got.Tasks)
	}
}
