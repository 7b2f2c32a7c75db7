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

package provider

import "container/heap"

// TaskStream produces tasks lazily in sort order. Next returns false when
// the stream is exhausted; a stream is not restartable.
type TaskStream interface {
	Next() (*Task, bool)
}

// SliceStream adapts an already-sorted slice to a TaskStream.
type SliceStream struct {
	tasks []*Task
}

// NewSliceStream wraps tasks, which must already be in sort order.
func NewSliceStream(tasks []*Task) *SliceStream {
	return &SliceStream{tasks: tasks}
}

// Next pops the stream head.
func (s *SliceStream) Next() (*Task, bool) {
	if len(s.tasks) == 0 {
		return nil, false
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	return t, true
}

type streamHead struct {
	task   *Task
	stream TaskStream
}

type streamHeap struct {
	heads []streamHead
	less  func(a, b *Task) bool
}

func (h *streamHeap) Len() int           { return len(h.heads) }
func (h *streamHeap) Less(i, j int) bool { return h.less(h.heads[i].task, h.heads[j].task) }
func (h *streamHeap) Swap(i, j int)      { h.heads[i], h.heads[j] = h.heads[j], h.heads[i] }
func (h *streamHeap) Push(x interface{}) { h.heads = append(h.heads, x.(streamHead)) }
func (h *streamHeap) Pop() interface{} {
	last := h.heads[len(h.heads)-1]
	h.heads = h.heads[:len(h.heads)-1]
	return last
}

// MergeSorted merges independently sorted streams into one slice in the
// order defined by less. Backends that can only express AND-filters use this
// to fan an OR dimension out as separate queries and still return a single
// ordered result: pop the smallest head, emit it, and reinsert that stream's
// next value.
func MergeSorted(less func(a, b *Task) bool, streams ...TaskStream) []*Task {
	h := &streamHeap{less: less}
	for _, s := range streams {
		if t, ok := s.Next(); ok {
			h.heads = append(h.heads, streamHead{task: t, stream: s})
		}
	}
	heap.Init(h)

	var merged []*Task
	for h.Len() > 0 {
		head := h.heads[0]
		merged = append(merged, head.task)
		if t, ok := head.stream.Next(); ok {
			h.heads[0].task = t
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return merged
}
