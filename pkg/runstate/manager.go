package runstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates run state access so that concurrent test cases
// never lose each other's status updates.
type Manager struct {
	store ports.RunStateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.RunStateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release(name) after unlocking.
func (m *Manager) acquire(name string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		entry = &lockEntry{}
		m.locks[name] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, name)
	}
}

// Store returns the underlying store.
func (m *Manager) Store() ports.RunStateStore {
	return m.store
}

// Load retrieves a run state and brings it to the current schema version.
func (m *Manager) Load(ctx context.Context, name string) (*domain.RunState, error) {
	var state *domain.RunState
	err := m.WithLock(ctx, name, func(ctx context.Context) error {
		var err error
		state, err = m.load(ctx, name)
		return err
	})
	return state, err
}

func (m *Manager) load(ctx context.Context, name string) (*domain.RunState, error) {
	state, err := m.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return Migrate(state)
}

// Save stamps and persists the run state.
func (m *Manager) Save(ctx context.Context, name string, state *domain.RunState) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.save(ctx, name, state)
	})
}

func (m *Manager) save(ctx context.Context, name string, state *domain.RunState) error {
	now := m.now().UTC()
	state.Version = domain.RunStateVersion
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	return m.store.Save(ctx, name, state)
}

// Delete removes the run state.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.store.Delete(ctx, name)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Update loads the run state, applies fn and saves the result, all under the lock.
// Nothing is saved when fn returns an error.
func (m *Manager) Update(ctx context.Context, name string, fn func(*domain.RunState) error) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		state, err := m.load(ctx, name)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return m.save(ctx, name, state)
	})
}

// UpdateStep records a status change for one step. Entering StepRunning counts an attempt;
// a failure records its error, any other status clears it.
func (m *Manager) UpdateStep(ctx context.Context, name, testCase, step string, status domain.StepStatus, stepErr error) error {
	return m.Update(ctx, name, func(state *domain.RunState) error {
		tc := state.Find(testCase)
		if tc == nil {
			return fmt.Errorf("%w: test case %q is not in run state %q", domain.ErrIncompatibleRunState, testCase, name)
		}
		s := tc.Step(step)
		if s == nil {
			return fmt.Errorf("%w: step %q is not in test case %q", domain.ErrIncompatibleRunState, step, testCase)
		}
		s.Status = status
		s.UpdatedAt = m.now().UTC()
		switch {
		case status == domain.StepRunning:
			s.Attempts++
		case stepErr != nil:
			s.LastError = stepErr.Error()
		default:
			s.LastError = ""
		}
		return nil
	})
}

// WithLock executes fn while holding the lock for name.
func (m *Manager) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	entry := m.acquire(name)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(name)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, name, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"run_state", name,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
