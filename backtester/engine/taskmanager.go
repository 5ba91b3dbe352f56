package engine

import (
	"fmt"
	"slices"

	"github.com/gofrs/uuid"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/log"
	"golang.org/x/time/rate"
)

// NewTaskManager creates a task manager to allow the backtester to manage
// multiple runs. progressRate caps the progress messages per second each
// subscriber receives, zero or less is unlimited. Runs added without their
// own metrics report to m
func NewTaskManager(progressRate float64, m *Metrics) *TaskManager {
	limit := rate.Inf
	if progressRate > 0 {
		limit = rate.Limit(progressRate)
	}
	return &TaskManager{
		rate:        limit,
		metrics:     m,
		subscribers: make(map[uuid.UUID][]*subscriber),
	}
}

// AddTask adds a run to the manager
func (r *TaskManager) AddTask(b *BackTest) error {
	if r == nil {
		return fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	if b == nil {
		return fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := range r.tasks {
		if r.tasks[i].Equal(b) {
			return fmt.Errorf("%w %s %s", errTaskAlreadyMonitored, b.MetaData.ID, b.MetaData.Strategy)
		}
	}

	err := b.SetupMetaData()
	if err != nil {
		return err
	}
	b.m.Lock()
	if b.metrics == nil {
		b.metrics = r.metrics
	}
	id := b.MetaData.ID
	b.m.Unlock()
	err = b.AddProgressFunc(func(p Progress) {
		r.publish(id, p)
	})
	if err != nil {
		return err
	}
	r.tasks = append(r.tasks, b)
	log.Infof(log.TaskMgr, "added task %v running %v", id, b.MetaData.Strategy)
	return nil
}

// List details all strategy tasks
func (r *TaskManager) List() ([]*TaskSummary, error) {
	if r == nil {
		return nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	resp := make([]*TaskSummary, len(r.tasks))
	for i := range r.tasks {
		sum, err := r.tasks[i].GenerateSummary()
		if err != nil {
			return nil, err
		}
		resp[i] = sum
	}
	return resp, nil
}

// GetSummary returns details about a strategy task
func (r *TaskManager) GetSummary(id uuid.UUID) (*TaskSummary, error) {
	b, err := r.task(id)
	if err != nil {
		return nil, err
	}
	return b.GenerateSummary()
}

// Result returns the result of a finished task
func (r *TaskManager) Result(id uuid.UUID) (*Result, error) {
	b, err := r.task(id)
	if err != nil {
		return nil, err
	}
	return b.Result()
}

func (r *TaskManager) task(id uuid.UUID) (*BackTest, error) {
	if r == nil {
		return nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := range r.tasks {
		if r.tasks[i].MatchesID(id) {
			return r.tasks[i], nil
		}
	}
	return nil, fmt.Errorf("%s %w", id, errTaskNotFound)
}

// StopTask cancels a running strategy task. Its result holds everything
// recorded before the cancellation
func (r *TaskManager) StopTask(id uuid.UUID) error {
	if r == nil {
		return fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := range r.tasks {
		switch {
		case !r.tasks[i].MatchesID(id):
			continue
		case r.tasks[i].IsRunning():
			log.Infof(log.TaskMgr, "stopping task %v", id)
			return r.tasks[i].Stop()
		case r.tasks[i].HasRan():
			return fmt.Errorf("%w %v", errAlreadyRan, id)
		default:
			return fmt.Errorf("%w %v", errTaskHasNotRan, id)
		}
	}
	return fmt.Errorf("%s %w", id, errTaskNotFound)
}

// StopAllTasks stops all running strategies
func (r *TaskManager) StopAllTasks() ([]*TaskSummary, error) {
	if r == nil {
		return nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	resp := make([]*TaskSummary, 0, len(r.tasks))
	for i := range r.tasks {
		if !r.tasks[i].IsRunning() {
			continue
		}
		err := r.tasks[i].Stop()
		if err != nil {
			return nil, err
		}
		sum, err := r.tasks[i].GenerateSummary()
		if err != nil {
			return nil, err
		}
		resp = append(resp, sum)
	}
	return resp, nil
}

// StartTask executes a strategy if found. The task runs in the background
func (r *TaskManager) StartTask(id uuid.UUID) error {
	if r == nil {
		return fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := range r.tasks {
		switch {
		case !r.tasks[i].MatchesID(id):
			continue
		case r.tasks[i].IsRunning():
			return fmt.Errorf("%w %v", errTaskIsRunning, id)
		case r.tasks[i].HasRan():
			return fmt.Errorf("%w %v", errAlreadyRan, id)
		default:
			log.Infof(log.TaskMgr, "starting task %v", id)
			return r.tasks[i].ExecuteStrategy(false)
		}
	}
	return fmt.Errorf("%s %w", id, errTaskNotFound)
}

// StartAllTasks executes all strategies which have not yet ran
func (r *TaskManager) StartAllTasks() ([]uuid.UUID, error) {
	if r == nil {
		return nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	executedRuns := make([]uuid.UUID, 0, len(r.tasks))
	for i := range r.tasks {
		if r.tasks[i].HasRan() || r.tasks[i].IsRunning() {
			continue
		}
		err := r.tasks[i].ExecuteStrategy(false)
		if err != nil {
			return nil, err
		}
		executedRuns = append(executedRuns, r.tasks[i].MetaData.ID)
	}
	return executedRuns, nil
}

// ClearTask removes a run from memory, but only if it is not running. Its
// progress subscribers are closed
func (r *TaskManager) ClearTask(id uuid.UUID) error {
	if r == nil {
		return fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := range r.tasks {
		if !r.tasks[i].MatchesID(id) {
			continue
		}
		if r.tasks[i].IsRunning() {
			return fmt.Errorf("%w %v, currently running. Stop it first", errCannotClear, id)
		}
		r.tasks = slices.Delete(r.tasks, i, i+1)
		r.dropSubscribers(id)
		return nil
	}
	return fmt.Errorf("%s %w", id, errTaskNotFound)
}

// ClearAllTasks removes all tasks from memory, but only if they are not running
func (r *TaskManager) ClearAllTasks() (clearedRuns, remainingRuns []*TaskSummary, err error) {
	if r == nil {
		return nil, nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	r.m.Lock()
	defer r.m.Unlock()
	for i := 0; i < len(r.tasks); i++ {
		var run *TaskSummary
		run, err = r.tasks[i].GenerateSummary()
		if err != nil {
			return nil, nil, err
		}
		if r.tasks[i].IsRunning() {
			remainingRuns = append(remainingRuns, run)
			continue
		}
		clearedRuns = append(clearedRuns, run)
		r.dropSubscribers(run.MetaData.ID)
		r.tasks = slices.Delete(r.tasks, i, i+1)
		i--
	}
	return clearedRuns, remainingRuns, nil
}

// Subscribe streams a task's progress. Updates are rate limited and a slow
// reader only sees the latest; the final progress of the run is always
// delivered before the channel closes. The returned func unsubscribes
func (r *TaskManager) Subscribe(id uuid.UUID) (<-chan Progress, func(), error) {
	b, err := r.task(id)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscriber{
		limiter: rate.NewLimiter(r.rate, 1),
		updates: make(chan Progress, 1),
		done:    make(chan struct{}),
	}
	r.subM.Lock()
	r.subscribers[id] = append(r.subscribers[id], sub)
	r.subM.Unlock()

	go func() {
		select {
		case <-b.Done():
			if sum, err := b.GenerateSummary(); err == nil {
				sub.send(sum.Progress, true)
			}
			r.unsubscribe(id, sub)
		case <-sub.done:
		}
		sub.close()
	}()
	return sub.updates, func() { r.unsubscribe(id, sub) }, nil
}

func (r *TaskManager) publish(id uuid.UUID, p Progress) {
	r.subM.Lock()
	subs := slices.Clone(r.subscribers[id])
	r.subM.Unlock()
	for _, s := range subs {
		s.send(p, p.Index >= p.Total)
	}
}

func (r *TaskManager) unsubscribe(id uuid.UUID, sub *subscriber) {
	r.subM.Lock()
	r.subscribers[id] = slices.DeleteFunc(r.subscribers[id], func(s *subscriber) bool {
		return s == sub
	})
	if len(r.subscribers[id]) == 0 {
		delete(r.subscribers, id)
	}
	r.subM.Unlock()
	sub.once.Do(func() { close(sub.done) })
}

func (r *TaskManager) dropSubscribers(id uuid.UUID) {
	r.subM.Lock()
	subs := r.subscribers[id]
	delete(r.subscribers, id)
	r.subM.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
}

// send offers p to the subscriber without blocking. Forced updates bypass
// the limiter and replace anything unread
func (s *subscriber) send(p Progress, force bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed || (!force && !s.limiter.Allow()) {
		return
	}
	select {
	case s.updates <- p:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- p
}

func (s *subscriber) close() {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}
