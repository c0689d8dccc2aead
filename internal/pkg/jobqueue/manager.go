package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2/log"
)

// PeriodicTask is a background task run on a fixed interval while the
// manager is running.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Manager manages the job queue and periodic background tasks
type Manager struct {
	queue     *Queue
	tasks     []PeriodicTask
	scheduler *gocron.Scheduler
	mu        sync.Mutex
	running   bool
}

// NewManager creates a manager for q.
func NewManager(q *Queue) *Manager {
	return &Manager{queue: q}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// AddTask registers a periodic task. Tasks added while running are picked
// up on the next Start.
func (m *Manager) AddTask(task PeriodicTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// A fresh scheduler per start cycle so the manager can be restarted safely.
	m.scheduler = gocron.NewScheduler(time.UTC)
	m.scheduler.SingletonModeAll()
	for _, task := range m.tasks {
		if task.Interval <= 0 || task.Run == nil {
			log.Warnf("[JobQueue Manager] Skipping task %q with invalid schedule", task.Name)
			continue
		}
		task := task
		if _, err := m.scheduler.Every(task.Interval).Tag(task.Name).Do(func() {
			m.runTask(task)
		}); err != nil {
			log.Errorf("[JobQueue Manager] Failed to schedule task %q: %v", task.Name, err)
			continue
		}
		log.Infof("[JobQueue Manager] Scheduled task %q (interval: %s)", task.Name, task.Interval)
	}
	m.scheduler.StartAsync()

	log.Info("[JobQueue Manager] Started successfully")
}

func (m *Manager) runTask(task PeriodicTask) {
	ctx, cancel := context.WithTimeout(context.Background(), task.Interval)
	defer cancel()
	if err := task.Run(ctx); err != nil {
		log.Errorf("[JobQueue Manager] Task %q error: %v", task.Name, err)
	}
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.scheduler != nil {
		m.scheduler.Stop()
		m.scheduler = nil
	}
	m.running = false

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// TaskNames returns the names of the registered periodic tasks.
func (m *Manager) TaskNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tasks))
	for _, t := range m.tasks {
		names = append(names, t.Name)
	}
	return names
}
