package runstate

// LockCount returns how many per-name lock entries are live.
func LockCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
