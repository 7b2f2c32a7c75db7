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

package params

import (
	"strings"
	"testing"
)

const threeTaskTable = "--env SAMPLE\t--input\t--output OUT\n" +
	"s1\tgs://bucket/s1.bam\tgs://bucket/out/s1.vcf\n" +
	"s2\tgs://bucket/s2.bam\tgs://bucket/out/s2.vcf\n" +
	"s3\tgs://bucket/s3.bam\tgs://bucket/out/s3.vcf\n"

func TestParseTaskTable(t *testing.T) {
	rows, err := ParseTaskTable(strings.NewReader(threeTaskTable), TaskRange{})
	if err != nil {
		t.Fatalf("ParseTaskTable: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row.TaskID != i+1 {
			t.Errorf("row %d: task id = %d, want %d", i, row.TaskID, i+1)
		}
		wantEnv := "s" + string(rune('1'+i))
		if len(row.Envs) != 1 || row.Envs[0].Name != "SAMPLE" || row.Envs[0].Value != wantEnv {
			t.Errorf("row %d: envs = %v, want SAMPLE=%s", i, row.Envs, wantEnv)
		}
		if len(row.Inputs) != 1 || row.Inputs[0].Name != "INPUT_0" {
			t.Errorf("row %d: inputs = %v, want one INPUT_0", i, row.Inputs)
		}
		if len(row.Outputs) != 1 || row.Outputs[0].Name != "OUT" {
			t.Errorf("row %d: outputs = %v, want one OUT", i, row.Outputs)
		}
	}

	// Bindings must be disjoint across rows.
	if rows[0].Inputs[0].URI.String() == rows[1].Inputs[0].URI.String() {
		t.Error("rows 1 and 2 share an input URI")
	}
}

func TestParseTaskTableRange(t *testing.T) {
	rows, err := ParseTaskTable(strings.NewReader(threeTaskTable), TaskRange{Min: 2, Max: 2})
	if err != nil {
		t.Fatalf("ParseTaskTable: %v", err)
	}
	if len(rows) != 1 || rows[0].TaskID != 2 {
		t.Fatalf("got %v, want exactly task 2", rows)
	}
}

func TestParseTaskTableBareWordIsEnv(t *testing.T) {
	table := "SAMPLE\tINDEX\nalpha\t1\n"
	rows, err := ParseTaskTable(strings.NewReader(table), TaskRange{})
	if err != nil {
		t.Fatalf("ParseTaskTable: %v", err)
	}
	if len(rows[0].Envs) != 2 || rows[0].Envs[0].Name != "SAMPLE" || rows[0].Envs[1].Name != "INDEX" {
		t.Errorf("envs = %v, want SAMPLE and INDEX", rows[0].Envs)
	}
}

func TestParseTaskTableMalformedRowAborts(t *testing.T) {
	table := "--env A\t--env B\n" +
		"1\t2\n" +
		"only-one-field\n"
	_, err := ParseTaskTable(strings.NewReader(table), TaskRange{})
	if err == nil {
		t.Fatal("malformed row accepted, want validation error")
	}
	if !IsValidation(err) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestParseTaskTableHeaderErrors(t *testing.T) {
	bad := []string{
		"",
		"--env\nx\n",
		"--label\nx\n",
		"--frobnicate NAME\nx\n",
		"--env not a name\nx\n",
	}
	for _, table := range bad {
		if _, err := ParseTaskTable(strings.NewReader(table), TaskRange{}); err == nil {
			t.Errorf("header %q accepted, want error", strings.SplitN(table, "\n", 2)[0])
		}
	}
}
