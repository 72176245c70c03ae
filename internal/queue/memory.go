package queue

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// Memory is an in-process Queue. Jobs do not survive a restart; it exists
// for local runs without a broker and for tests.
type Memory struct {
	mu   sync.Mutex
	jobs []model.Job
}

var _ Queue = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, job model.Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs = append(m.jobs, job)
	return job.ID, nil
}

func (m *Memory) Dequeue(ctx context.Context) (model.Job, error) {
	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) == 0 {
		return model.Job{}, ErrEmpty
	}
	job := m.jobs[0]
	m.jobs[0] = model.Job{}
	m.jobs = m.jobs[1:]
	return job, nil
}

// Len reports how many jobs are waiting.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Snapshot returns a copy of the waiting jobs, head first.
func (m *Memory) Snapshot() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

func (m *Memory) Close() error {
	return nil
}
