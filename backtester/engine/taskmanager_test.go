package engine

import (
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"golang.org/x/time/rate"
)

// blockingBackTest returns a run which parks inside its first bar until
// release is closed
func blockingBackTest(t *testing.T) (bt *BackTest, entered, release chan struct{}) {
	t.Helper()
	entered = make(chan struct{})
	release = make(chan struct{})
	s := &testStrategy{
		onBar: func(_ base.API, st data.Step) error {
			if st.Index == 0 {
				close(entered)
				<-release
			}
			return nil
		},
	}
	return newTestBackTest(t, s, 1, 2, 3), entered, release
}

func TestNewTaskManager(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	assert.Equal(t, rate.Inf, tm.rate)
	assert.NotNil(t, tm.subscribers)

	tm = NewTaskManager(5, nil)
	assert.Equal(t, rate.Limit(5), tm.rate)
}

func TestAddTask(t *testing.T) {
	t.Parallel()
	var tm *TaskManager
	assert.ErrorIs(t, tm.AddTask(&BackTest{}), common.ErrNilPointer)

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	tm = NewTaskManager(0, m)
	assert.ErrorIs(t, tm.AddTask(nil), common.ErrNilPointer)

	bt := newTestBackTest(t, &testStrategy{}, 1)
	require.NoError(t, tm.AddTask(bt))
	assert.ErrorIs(t, tm.AddTask(bt), errTaskAlreadyMonitored)
	assert.Same(t, m, bt.metrics, "runs without metrics inherit the manager's")
	assert.Len(t, tm.tasks, 1)
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	bt := newTestBackTest(t, &testStrategy{}, 1, 2, 3)
	require.NoError(t, tm.AddTask(bt))
	id := bt.MetaData.ID

	unknown, err := uuid.NewV4()
	require.NoError(t, err)
	_, err = tm.GetSummary(unknown)
	assert.ErrorIs(t, err, errTaskNotFound)
	assert.ErrorIs(t, tm.StartTask(unknown), errTaskNotFound)
	assert.ErrorIs(t, tm.StopTask(unknown), errTaskNotFound)
	assert.ErrorIs(t, tm.ClearTask(unknown), errTaskNotFound)

	assert.ErrorIs(t, tm.StopTask(id), errTaskHasNotRan)
	_, err = tm.Result(id)
	assert.ErrorIs(t, err, errNoResult)

	sums, err := tm.List()
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, StatusPending, sums[0].MetaData.Status)

	require.NoError(t, tm.StartTask(id))
	<-bt.Done()
	assert.ErrorIs(t, tm.StartTask(id), errAlreadyRan)
	assert.ErrorIs(t, tm.StopTask(id), errAlreadyRan)

	sum, err := tm.GetSummary(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.MetaData.Status)
	res, err := tm.Result(id)
	require.NoError(t, err)
	assert.Equal(t, 3, res.StepsProcessed)

	require.NoError(t, tm.ClearTask(id))
	_, err = tm.GetSummary(id)
	assert.ErrorIs(t, err, errTaskNotFound)
}

func TestStopRunningTask(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	bt, entered, release := blockingBackTest(t)
	require.NoError(t, tm.AddTask(bt))
	id := bt.MetaData.ID

	require.NoError(t, tm.StartTask(id))
	<-entered
	assert.ErrorIs(t, tm.StartTask(id), errTaskIsRunning)
	assert.ErrorIs(t, tm.ClearTask(id), errCannotClear)

	require.NoError(t, tm.StopTask(id))
	close(release)
	<-bt.Done()
	res, err := tm.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
}

func TestStartAllAndStopAllTasks(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	finished := newTestBackTest(t, &testStrategy{}, 1)
	require.NoError(t, finished.ExecuteStrategy(true))
	require.NoError(t, tm.AddTask(finished))

	blocked, entered, release := blockingBackTest(t)
	require.NoError(t, tm.AddTask(blocked))

	started, err := tm.StartAllTasks()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{blocked.MetaData.ID}, started)
	<-entered

	cleared, remaining, err := tm.ClearAllTasks()
	require.NoError(t, err)
	require.Len(t, cleared, 1)
	assert.Equal(t, finished.MetaData.ID, cleared[0].MetaData.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, blocked.MetaData.ID, remaining[0].MetaData.ID)

	stopped, err := tm.StopAllTasks()
	require.NoError(t, err)
	require.Len(t, stopped, 1)
	close(release)
	<-blocked.Done()

	started, err = tm.StartAllTasks()
	require.NoError(t, err)
	assert.Empty(t, started)

	cleared, remaining, err = tm.ClearAllTasks()
	require.NoError(t, err)
	assert.Len(t, cleared, 1)
	assert.Empty(t, remaining)
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	_, _, err := tm.Subscribe(uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, errTaskNotFound)

	bt := newTestBackTest(t, &testStrategy{}, 1, 2, 3, 4, 5)
	require.NoError(t, tm.AddTask(bt))
	updates, unsubscribe, err := tm.Subscribe(bt.MetaData.ID)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, tm.StartTask(bt.MetaData.ID))
	var last Progress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-updates:
			if !ok {
				assert.Equal(t, 5, last.Index, "the final progress is delivered before the channel closes")
				assert.Equal(t, 5, last.Total)
				return
			}
			assert.GreaterOrEqual(t, p.Index, last.Index)
			last = p
		case <-timeout:
			t.Fatal("progress channel was not closed")
		}
	}
}

func TestSubscribeAfterFinish(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(1, nil)
	bt := newTestBackTest(t, &testStrategy{}, 1, 2)
	require.NoError(t, tm.AddTask(bt))
	require.NoError(t, bt.ExecuteStrategy(true))

	updates, _, err := tm.Subscribe(bt.MetaData.ID)
	require.NoError(t, err)
	p, ok := <-updates
	require.True(t, ok)
	assert.Equal(t, 2, p.Index)
	_, ok = <-updates
	assert.False(t, ok)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	tm := NewTaskManager(0, nil)
	bt := newTestBackTest(t, &testStrategy{}, 1)
	require.NoError(t, tm.AddTask(bt))

	updates, unsubscribe, err := tm.Subscribe(bt.MetaData.ID)
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok, "unsubscribing closes the channel")

	tm.subM.Lock()
	assert.Empty(t, tm.subscribers)
	tm.subM.Unlock()

	updates, _, err = tm.Subscribe(bt.MetaData.ID)
	require.NoError(t, err)
	require.NoError(t, tm.ClearTask(bt.MetaData.ID))
	_, ok = <-updates
	assert.False(t, ok, "clearing a task closes its subscribers")
}

func TestSubscriberSend(t *testing.T) {
	t.Parallel()
	s := &subscriber{
		limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
		updates: make(chan Progress, 1),
		done:    make(chan struct{}),
	}
	s.send(Progress{Index: 1}, false)
	s.send(Progress{Index: 2}, false)
	s.send(Progress{Index: 3}, true)
	assert.Equal(t, 3, (<-s.updates).Index, "forced sends replace unread updates")

	s.send(Progress{Index: 4}, false)
	select {
	case p := <-s.updates:
		t.Fatalf("rate limited update %v delivered", p.Index)
	default:
	}

	s.close()
	s.close()
	s.send(Progress{Index: 5}, true)
	_, ok := <-s.updates
	assert.False(t, ok)
}
