package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relayd/relayd/internal/domain"
)

// queueSize bounds how many records a single sink can lag behind before
// Log starts dropping for it. A logger sink is observability, not routing:
// losing a record under backpressure is acceptable, blocking the event
// path is not.
const queueSize = 256

// deliverTimeout bounds how long a single sink's Log call may run before
// the manager gives up on that record and moves to the next one.
const deliverTimeout = 10 * time.Second

type sink struct {
	name   string
	plugin domain.LoggerPlugin
	ch     chan domain.LogRecord
	dropped uint64
}

// Manager fans out LogRecords to every registered logger sink. Each sink
// has its own bounded channel and drain goroutine, so one slow or wedged
// logger never delays delivery to the others or to the caller of Log.
type Manager struct {
	mu    sync.RWMutex
	sinks map[string]*sink
	wg    sync.WaitGroup
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sinks: make(map[string]*sink)}
}

// Register adds a logger sink and starts its drain goroutine. Registering
// a name twice is an error: each configured logger is registered exactly
// once at module load time.
func (m *Manager) Register(name string, plugin domain.LoggerPlugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sinks[name]; exists {
		return domain.Wrap(domain.ErrKindConfig, name, fmt.Errorf("logger %q already registered", name))
	}

	s := &sink{name: name, plugin: plugin, ch: make(chan domain.LogRecord, queueSize)}
	m.sinks[name] = s

	m.wg.Add(1)
	go m.drain(s)
	return nil
}

// Log fans rec out to every registered sink without blocking. A sink whose
// queue is full drops the record and counts it rather than applying
// backpressure to the caller.
func (m *Manager) Log(rec domain.LogRecord) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sinks {
		select {
		case s.ch <- rec:
		default:
			s.dropped++
		}
	}
}

func (m *Manager) drain(s *sink) {
	defer m.wg.Done()
	for rec := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		_ = s.plugin.Log(ctx, rec)
		cancel()
	}
}

// Close stops accepting new records, drains what's queued, and shuts down
// every registered logger plugin. It blocks until all drain goroutines
// have exited.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sinks := make([]*sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		sinks = append(sinks, s)
		close(s.ch)
	}
	m.sinks = make(map[string]*sink)
	m.mu.Unlock()

	m.wg.Wait()

	var firstErr error
	for _, s := range sinks {
		if err := s.plugin.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("logger %q shutdown: %w", s.name, err)
		}
	}
	return firstErr
}
