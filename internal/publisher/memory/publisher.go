// Package memory contains an in-memory publisher for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher records completion messages instead of sending them. Payloads
// are JSON-encoded up front so recorded bytes match what the Pub/Sub
// publisher would put on the wire.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message is one recorded completion publish.
type Message struct {
	Topic string
	Data  []byte
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes and records the message, returning a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Completions decodes every payload recorded on topic into the completion
// payload shape the pipeline publishes.
func (p *Publisher) Completions(topic string) ([]map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []map[string]any
	for _, msg := range p.messages {
		if msg.Topic != topic {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode recorded payload: %w", err)
		}
		out = append(out, payload)
	}
	return out, nil
}
