// Copyright (c) 2024 The drv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netpoll

import "sync"

// TaskFunc is a unit of work deferred onto the poller goroutine via
// Trigger/UrgentTrigger.
type TaskFunc func(arg interface{}) error

// Task pairs a TaskFunc with its argument; pooled to avoid an
// allocation per Trigger call.
type Task struct {
	Run TaskFunc
	Arg interface{}
}

var taskPool = sync.Pool{New: func() interface{} { return new(Task) }}

func getTask() *Task {
	return taskPool.Get().(*Task)
}

func putTask(t *Task) {
	t.Run, t.Arg = nil, nil
	taskPool.Put(t)
}

// taskQueue is a mutex-guarded FIFO of pending tasks. A single mutex
// around a slice is more than fast enough for the rates Trigger/
// UrgentTrigger are meant for (cross-goroutine wakeups, not per-packet
// work) — see DESIGN.md.
type taskQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

func (q *taskQueue) enqueue(t *Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

func (q *taskQueue) dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t
}

func (q *taskQueue) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) == 0
}
