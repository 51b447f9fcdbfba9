package mq

import "sync"

// Topics published by the scan service.
const (
	TopicScanRecorded    = "scan.recorded"
	TopicActionCompleted = "action.completed"
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Subscriber registers handlers; the returned func removes the handler.
type Subscriber interface {
	Subscribe(topic string, handler func([]byte) error) (unsubscribe func())
}

// Bus both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
}

// Memory is an in-process fan-out bus. Handlers run synchronously on the
// publishing goroutine, so they must not block. Handler errors are ignored.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func([]byte) error
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]func([]byte) error)}
}

func (m *Memory) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	handlers := make([]func([]byte) error, 0, len(m.subs[topic]))
	for _, h := range m.subs[topic] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		_ = h(payload)
	}
	return nil
}

func (m *Memory) Subscribe(topic string, handler func([]byte) error) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]func([]byte) error)
	}
	m.subs[topic][id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[topic], id)
	}
}
