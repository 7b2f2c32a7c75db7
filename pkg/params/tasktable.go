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
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// TaskRow holds the parameters of one task parsed from a task table.
type TaskRow struct {
	TaskID  int
	Envs    []EnvParam
	Labels  []LabelParam
	Inputs  []FileParam
	Outputs []FileParam
}

// TaskRange restricts ingestion to an inclusive range of 1-based task ids.
// A zero Max means no upper bound.
type TaskRange struct {
	Min int
	Max int
}

func (r TaskRange) contains(id int) bool {
	if r.Min > 0 && id < r.Min {
		return false
	}
	if r.Max > 0 && id > r.Max {
		return false
	}
	return true
}

type columnKind int

const (
	colEnv columnKind = iota
	colLabel
	colInput
	colOutput
)

type columnDef struct {
	kind      columnKind
	name      string
	recursive bool
}

// parseHeader turns the table's first row into column definitions. Unnamed
// file columns are auto-named from the parser's counters so that column
// naming is stable for every row of the table.
func parseHeader(p *Parser, cells []string) ([]columnDef, error) {
	defs := make([]columnDef, 0, len(cells))
	for _, cell := range cells {
		fields := strings.Fields(strings.TrimSpace(cell))
		if len(fields) == 0 {
			return nil, Validationf("task table header contains an empty column")
		}
		var def columnDef
		switch fields[0] {
		case "--env":
			if len(fields) != 2 {
				return nil, Validationf("task table header %q: --env requires a name", cell)
			}
			def = columnDef{kind: colEnv, name: fields[1]}
		case "--label":
			if len(fields) != 2 {
				return nil, Validationf("task table header %q: --label requires a name", cell)
			}
			def = columnDef{kind: colLabel, name: fields[1]}
		case "--input", "--input-recursive":
			def = columnDef{kind: colInput, recursive: fields[0] == "--input-recursive"}
			if len(fields) > 1 {
				def.name = fields[1]
			} else {
				def.name = p.nextName(KindInput)
			}
		case "--output", "--output-recursive":
			def = columnDef{kind: colOutput, recursive: fields[0] == "--output-recursive"}
			if len(fields) > 1 {
				def.name = fields[1]
			} else {
				def.name = p.nextName(KindOutput)
			}
		default:
			if strings.HasPrefix(fields[0], "--") || len(fields) != 1 {
				return nil, Validationf("unrecognized task table column %q", cell)
			}
			// A bare word is shorthand for an --env column.
			def = columnDef{kind: colEnv, name: fields[0]}
		}
		if def.kind == colEnv && !envNameRe.MatchString(def.name) {
			return nil, Validationf("invalid environment variable name %q in task table header", def.name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseTaskTable ingests a tab-separated task table: row 1 defines columns,
// each following row defines one task whose id is its 1-based ordinal. A row
// whose field count disagrees with the header aborts the whole ingestion.
func ParseTaskTable(r io.Reader, rng TaskRange) ([]TaskRow, error) {
	parser := NewParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "reading task table")
		}
		return nil, Validationf("task table is empty")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	defs, err := parseHeader(parser, header)
	if err != nil {
		return nil, err
	}

	var rows []TaskRow
	taskID := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		taskID++
		cells := strings.Split(line, "\t")
		if len(cells) != len(defs) {
			return nil, Validationf("task table row %d has %d fields, expected %d", taskID, len(cells), len(defs))
		}
		if !rng.contains(taskID) {
			continue
		}
		row, err := parseRow(parser, defs, taskID, cells)
		if err != nil {
			return nil, errors.Wrapf(err, "task table row %d", taskID)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading task table")
	}
	if len(rows) == 0 {
		return nil, Validationf("task table contains no tasks in the requested range")
	}
	return rows, nil
}

func parseRow(parser *Parser, defs []columnDef, taskID int, cells []string) (TaskRow, error) {
	row := TaskRow{TaskID: taskID}
	for i, def := range defs {
		value := strings.TrimSpace(cells[i])
		switch def.kind {
		case colEnv:
			env, err := NewEnvParam(def.name, value)
			if err != nil {
				return TaskRow{}, err
			}
			row.Envs = append(row.Envs, env)
		case colLabel:
			label, err := NewLabelParam(def.name, value, false)
			if err != nil {
				return TaskRow{}, err
			}
			row.Labels = append(row.Labels, label)
		case colInput:
			if value == "" {
				row.Inputs = append(row.Inputs, FileParam{Kind: KindInput, Name: def.name, Recursive: def.recursive})
				continue
			}
			in, err := parser.ParseInput(def.name, value, def.recursive)
			if err != nil {
				return TaskRow{}, err
			}
			row.Inputs = append(row.Inputs, in)
		case colOutput:
			if value == "" {
				row.Outputs = append(row.Outputs, FileParam{Kind: KindOutput, Name: def.name, Recursive: def.recursive})
				continue
			}
			out, err := parser.ParseOutput(def.name, value, def.recursive)
			if err != nil {
				return TaskRow{}, err
			}
			row.Outputs = append(row.Outputs, out)
		}
	}
	return row, nil
}
