package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task 代表一次运行（生成清单或检查孤儿文件）。
type Task struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Duration 返回任务耗时，未结束的任务返回到目前为止的耗时。
func (t *Task) Duration() time.Duration {
	if t.EndTime == nil {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Func 是任务的具体工作，logger 已带上任务 ID。
type Func func(ctx context.Context, logger *slog.Logger) error

// Manager 记录任务并保证同名任务不会同时运行。
type Manager struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
}

// Run 同步执行一个任务，返回任务记录和 fn 的错误。
func (m *Manager) Run(ctx context.Context, name string, fn Func) (*Task, error) {
	m.mu.Lock()
	for _, t := range m.tasks {
		if t.Name == name && t.Status == StatusRunning {
			m.mu.Unlock()
			return nil, fmt.Errorf("另一个 %s 任务正在进行中 (ID: %s)，请等待其完成后再试", name, t.ID)
		}
	}
	t := &Task{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    StatusRunning,
		StartTime: time.Now(),
	}
	m.tasks[t.ID] = t
	m.mu.Unlock()

	logger := m.logger.With("task", t.ID)
	logger.Info("任务启动", "name", name)

	err := fn(ctx, logger)

	m.mu.Lock()
	endTime := time.Now()
	t.EndTime = &endTime
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
	} else {
		t.Status = StatusCompleted
	}
	snapshot := *t
	m.mu.Unlock()

	if err != nil {
		logger.Error("任务失败", "name", name, "duration", snapshot.Duration(), "error", err)
	} else {
		logger.Info("任务完成", "name", name, "duration", snapshot.Duration())
	}
	return &snapshot, err
}
