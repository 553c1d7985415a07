package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/domain"
)

// StreamManager fans workflow transitions out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // workflow ID -> channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe returns a channel of serialized events for workflowID and a
// function ending the subscription.
func (sm *StreamManager) Subscribe(workflowID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[workflowID]; !ok {
		sm.subscribers[workflowID] = make(map[chan string]struct{})
	}
	sm.subscribers[workflowID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[workflowID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, workflowID)
				}
			}
		})
	}
}

// Subscribers returns the number of open subscriptions for workflowID.
func (sm *StreamManager) Subscribers(workflowID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[workflowID])
}

// Broadcast sends msg to every subscriber of workflowID. Slow subscribers miss messages.
func (sm *StreamManager) Broadcast(workflowID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[workflowID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "workflow_id", workflowID)
		}
	}
}

// Hooks broadcasts every committed transition.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			data, err := json.Marshal(e)
			if err != nil {
				sm.logger.Error("SSE: failed to encode transition", "err", err)
				return
			}
			sm.Broadcast(e.WorkflowID, string(data))
		},
	}
}
