package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewManager(t *testing.T) {
	queue := NewQueue(nil, 2)
	manager := NewManager(queue)

	assert.Same(t, queue, manager.GetQueue())
	assert.False(t, manager.IsRunning())
	assert.Empty(t, manager.TaskNames())
}

func TestManager_AddTask(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1))

	manager.AddTask(PeriodicTask{Name: "expire_subscriptions", Interval: time.Minute, Run: func(context.Context) error { return nil }})
	manager.AddTask(PeriodicTask{Name: "flush_counters", Interval: 5 * time.Second, Run: func(context.Context) error { return nil }})

	assert.Equal(t, []string{"expire_subscriptions", "flush_counters"}, manager.TaskNames())
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1))

	// Stop without starting should be safe
	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_RunsPeriodicTasks(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	manager := NewManager(NewQueue(client, 1))

	var runs atomic.Int32
	manager.AddTask(PeriodicTask{
		Name:     "tick",
		Interval: 50 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	manager.Start()
	assert.True(t, manager.IsRunning())

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	manager.Stop()
	assert.False(t, manager.IsRunning())

	// Restart after stop uses a fresh scheduler.
	manager.Start()
	defer manager.Stop()
	assert.True(t, manager.IsRunning())
}
