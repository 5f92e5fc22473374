package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	contracts "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// MockPublisher is a mock for events.Publisher
type MockPublisher struct {
	mock.Mock

	mu     sync.Mutex
	events []contracts.Event
}

func (m *MockPublisher) Publish(ctx context.Context, event contracts.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// Names returns the names of the published events in order
func (m *MockPublisher) Names() []contracts.Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contracts.Name, len(m.events))
	for i, e := range m.events {
		out[i] = e.Name
	}
	return out
}

// MockHub is a mock for ClientCounter
type MockHub struct {
	mock.Mock
}

func (m *MockHub) ClientCount() int {
	return m.Called().Int(0)
}
