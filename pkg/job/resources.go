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
	"strconv"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/params"
	"github.com/spf13/pflag"
)

// Resources is the flat record of machine and runtime requirements. It is
// present at the job level as defaults and at the task level fully resolved;
// across retry attempts only the preemptible decision and the logging path
// may legitimately change.
type Resources struct {
	MinCores         int
	MinRAM           float64 // GB
	BootDiskSize     int     // GB
	DiskSize         int     // GB
	DiskType         string
	Image            string
	MachineType      string
	Zones            []string
	Regions          []string
	Scopes           []string
	Accelerator      string
	AcceleratorCount int
	Timeout          time.Duration
	Retries          int
	Preemptible      Preemptible

	// Logging is the user's destination template; LoggingPath is the value
	// resolved for a specific task attempt.
	Logging     string
	LoggingPath string

	// UsePreemptible is the resolved decision for the current attempt.
	UsePreemptible bool
}

// Preemptible is the tri-state preemptible-compute policy: never, always, or
// preemptible for attempts 1..N with standard machines thereafter.
type Preemptible struct {
	always bool
	max    int
}

// PreemptibleNever requests standard compute for every attempt.
func PreemptibleNever() Preemptible {
	return Preemptible{}
}

// PreemptibleAlways requests preemptible compute for every attempt.
func PreemptibleAlways() Preemptible {
	return Preemptible{always: true}
}

// PreemptibleUpTo requests preemptible compute for attempts 1..n.
func PreemptibleUpTo(n int) Preemptible {
	return Preemptible{max: n}
}

// ForAttempt reports whether the given 1-based attempt runs on preemptible
// compute. Attempt zero (retries disabled) is treated as the first attempt.
func (p Preemptible) ForAttempt(attempt int) bool {
	if p.always {
		return true
	}
	if attempt <= 0 {
		attempt = 1
	}
	return p.max > 0 && attempt <= p.max
}

// Validate checks the policy against the retry budget: falling back to
// standard compute after N preemptions only makes sense when at least N
// retries exist.
func (p Preemptible) Validate(retries int) error {
	if p.max <= 0 {
		return nil
	}
	if retries <= 0 {
		return params.Validationf("preemptible attempt limit %d requires retries to be enabled", p.max)
	}
	if retries < p.max {
		return params.Validationf("preemptible attempt limit %d exceeds the retry budget %d", p.max, retries)
	}
	return nil
}

// String implements pflag.Value.
func (p Preemptible) String() string {
	switch {
	case p.always:
		return "true"
	case p.max > 0:
		return strconv.Itoa(p.max)
	default:
		return "false"
	}
}

// Set implements pflag.Value, accepting "true", "false", or a positive
// integer N.
func (p *Preemptible) Set(value string) error {
	switch value {
	case "true":
		*p = PreemptibleAlways()
		return nil
	case "false":
		*p = PreemptibleNever()
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return params.Validationf("invalid preemptible value %q: want true, false, or a positive integer", value)
	}
	if n == 0 {
		*p = PreemptibleNever()
	} else {
		*p = PreemptibleUpTo(n)
	}
	return nil
}

// Type implements pflag.Value.
func (p Preemptible) Type() string {
	return "preemptible"
}

var _ pflag.Value = (*Preemptible)(nil)
