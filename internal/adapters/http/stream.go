package http

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/cairn/pkg/domain"
)

const subscriberBuffer = 64

type subscriber struct {
	runID string
	ch    chan string
}

// StreamManager fans lifecycle events out to SSE subscribers.
// Slow subscribers drop events rather than block the run.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a channel receiving events of runID, or of every run when runID is empty.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sub := &subscriber{runID: runID, ch: make(chan string, subscriberBuffer)}
	sm.mu.Lock()
	sm.subscribers[sub] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			delete(sm.subscribers, sub)
			sm.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Broadcast delivers msg to subscribers of runID.
func (sm *StreamManager) Broadcast(runID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for sub := range sm.subscribers {
		if sub.runID != "" && sub.runID != runID {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// Hooks publishes every lifecycle event as a JSON message.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(runID string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		sm.Broadcast(runID, string(data))
	}
	return domain.LifecycleHooks{
		OnTestCaseStart:  func(_ context.Context, e *domain.TestCaseEvent) { publish(e.RunID, e) },
		OnTestCaseFinish: func(_ context.Context, e *domain.TestCaseEvent) { publish(e.RunID, e) },
		OnStepStart:      func(_ context.Context, e *domain.StepEvent) { publish(e.RunID, e) },
		OnStepFinish:     func(_ context.Context, e *domain.StepEvent) { publish(e.RunID, e) },
	}
}
