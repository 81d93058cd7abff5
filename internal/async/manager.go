// Package async runs valuations in the background and tracks their outcome.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
)

// DefaultHistory is how many finished runs are remembered.
const DefaultHistory = 50

// Job is the work of one run.
type Job func(ctx context.Context) (decimal.Decimal, error)

type RunManager struct {
	mu       sync.RWMutex
	runs     map[models.RunID]*models.Run
	done     map[models.RunID]chan struct{}
	finished []models.RunID
	history  int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewRunManager(history int) *RunManager {
	if history <= 0 {
		history = DefaultHistory
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		runs:    make(map[models.RunID]*models.Run),
		done:    make(map[models.RunID]chan struct{}),
		history: history,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Start launches job in its own goroutine and returns immediately. The job's
// context is detached from the caller and is only cancelled by Stop.
func (m *RunManager) Start(kind string, job Job) models.RunID {
	id := models.RunID(uuid.NewString())
	doneChan := make(chan struct{})

	m.mu.Lock()
	m.runs[id] = &models.Run{
		ID:        id,
		Kind:      kind,
		Status:    models.RunStatusPending,
		StartedAt: m.now().UTC(),
	}
	m.done[id] = doneChan
	m.mu.Unlock()

	logger.Debug("Started %s run %s", kind, id)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		total, err := job(m.ctx)
		m.finish(id, total, err)
		close(doneChan)
	}()

	return id
}

func (m *RunManager) finish(id models.RunID, total decimal.Decimal, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := m.runs[id]
	finishedAt := m.now().UTC()
	run.FinishedAt = &finishedAt
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		logger.Error("%s run %s failed: %v", run.Kind, id, err)
	} else {
		run.Status = models.RunStatusCompleted
		run.Total = &total
		logger.Info("%s run %s completed: $%s", run.Kind, id, total.StringFixed(2))
	}

	m.finished = append(m.finished, id)
	for len(m.finished) > m.history {
		oldest := m.finished[0]
		m.finished = m.finished[1:]
		delete(m.runs, oldest)
		delete(m.done, oldest)
	}
}

// Get returns a snapshot of the run. Unknown or evicted runs report
// RunStatusNotFound.
func (m *RunManager) Get(id models.RunID) models.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return models.Run{ID: id, Status: models.RunStatusNotFound}
	}
	return *run
}

// Wait blocks until the run finishes or ctx is done.
func (m *RunManager) Wait(ctx context.Context, id models.RunID) (models.Run, error) {
	m.mu.RLock()
	doneChan, ok := m.done[id]
	m.mu.RUnlock()

	if ok {
		select {
		case <-doneChan:
		case <-ctx.Done():
			return models.Run{}, ctx.Err()
		}
	}
	return m.Get(id), nil
}

// Stop cancels every running job and waits for them to return.
func (m *RunManager) Stop() {
	m.cancel()
	m.wg.Wait()
}
