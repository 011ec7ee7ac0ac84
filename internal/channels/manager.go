package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/tubebot/internal/logging"
)

// Manager manages all channel instances.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a channel manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		logger:   logging.OrNop(logger),
	}
}

// Register adds a channel to the manager.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns a channel by name.
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// EnabledChannels returns the list of registered channel names.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts all channels concurrently and blocks until they return.
// The first channel error cancels the others and is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	chans := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		chans[name] = ch
	}
	m.mu.RUnlock()

	if len(chans) == 0 {
		m.logger.Warn("no channels enabled")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, ch := range chans {
		name, ch := name, ch
		g.Go(func() error {
			m.logger.Info("starting channel", zap.String("channel", name))
			if err := ch.Start(gctx); err != nil {
				m.logger.Error("channel error", zap.String("channel", name), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops all channels.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.logger.Warn("stop channel", zap.String("channel", name), zap.Error(err))
		}
	}
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}
