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

package wait

import (
	"fmt"
	"strings"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
)

// PredecessorFailureError reports that one or more jobs a submission depends
// on finished without success; the dependent job is never submitted.
type PredecessorFailureError struct {
	Messages []string
}

func (e *PredecessorFailureError) Error() string {
	return fmt.Sprintf("one or more predecessor jobs did not succeed: %s", strings.Join(e.Messages, "; "))
}

// WaitFailureError reports that a job was submitted but one or more of its
// tasks ended in FAILURE or CANCELED during an explicit wait. It carries the
// launched job's metadata so the caller can still query or cancel it.
type WaitFailureError struct {
	Messages []string
	JobMeta  job.Metadata
}

func (e *WaitFailureError) Error() string {
	return fmt.Sprintf("job %q did not complete successfully: %s", e.JobMeta.JobID, strings.Join(e.Messages, "; "))
}
