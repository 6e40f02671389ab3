package pool

import "sync"

// Task is a passive correlation tag grouping related jobs, e.g. a base
// network with its shuffle instances sharing a backup name. The pool records
// membership but never schedules based on it, and no isolation is implied.
type Task struct {
	Name string

	mu   sync.Mutex
	jobs []string
}

func NewTask(name string) *Task {
	return &Task{Name: name}
}

func (t *Task) add(jobName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = append(t.jobs, jobName)
}

// Jobs returns the names of the jobs submitted under this task, in
// submission order.
func (t *Task) Jobs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]string, len(t.jobs))
	copy(res, t.jobs)
	return res
}
