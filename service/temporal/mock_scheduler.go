package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockScheduler is a mock implementation of AirdropScheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	inputs    map[string]AirdropWorkflowInput
	statuses  map[string]*AirdropStatus
	nextID    int
	startErr  error
	statusErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		inputs:   make(map[string]AirdropWorkflowInput),
		statuses: make(map[string]*AirdropStatus),
	}
}

// StartAirdrop records the input and returns a sequential workflow ID.
// The new workflow reports as running at the read_initial stage.
func (m *MockScheduler) StartAirdrop(ctx context.Context, input AirdropWorkflowInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return "", m.startErr
	}

	m.nextID++
	id := fmt.Sprintf("airdrop-test-%d", m.nextID)
	m.inputs[id] = input
	m.statuses[id] = &AirdropStatus{
		WorkflowID: id,
		Status:     StatusRunning,
		Stage:      "read_initial",
	}
	return id, nil
}

// GetAirdropStatus returns the recorded status for id.
func (m *MockScheduler) GetAirdropStatus(ctx context.Context, id string) (*AirdropStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return nil, m.statusErr
	}

	status, ok := m.statuses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	copied := *status
	return &copied, nil
}

// SetStatus overrides the status reported for a workflow.
func (m *MockScheduler) SetStatus(status *AirdropStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.WorkflowID] = status
}

// SetStartError makes StartAirdrop return an error.
func (m *MockScheduler) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetStatusError makes GetAirdropStatus return an error.
func (m *MockScheduler) SetStatusError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErr = err
}

// Input returns the input a workflow was started with.
func (m *MockScheduler) Input(id string) (AirdropWorkflowInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.inputs[id]
	return input, ok
}

// StartedCount returns the number of workflows started.
func (m *MockScheduler) StartedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}
