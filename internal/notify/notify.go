// Package notify carries user-visible notifications (toasts) from the editor
// core to whichever client is attached to a session.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultCapacity bounds how many undrained notifications a queue keeps
const DefaultCapacity = 50

// Notification is a single user-visible message
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notifications
type Notifier interface {
	Notify(level Level, message string)
}

// Discard drops every notification
type Discard struct{}

// Notify implements Notifier
func (Discard) Notify(Level, string) {}

// Queue buffers notifications until a client drains them. When full, the
// oldest entries are dropped.
type Queue struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewQueue creates a queue that also logs every notification
func NewQueue(capacity int, logger *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{capacity: capacity, logger: logger, now: time.Now}
}

// Notify implements Notifier
func (q *Queue) Notify(level Level, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, Notification{Level: level, Message: message, Time: q.now()})
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append([]Notification(nil), q.items[over:]...)
	}

	switch level {
	case LevelError:
		q.logger.Warn("notification", zap.String("level", string(level)), zap.String("message", message))
	default:
		q.logger.Debug("notification", zap.String("level", string(level)), zap.String("message", message))
	}
}

// Drain returns and clears all pending notifications
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Len returns the number of pending notifications
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
