package mocks

import (
	"context"
	"sync"

	"github.com/you/websession/domain"
)

// MockCapabilityChecker implements domain.CapabilityChecker interface for testing
type MockCapabilityChecker struct {
	HasCapabilityFunc func(user *domain.User, capability domain.Capability) (bool, error)
}

// NewMockCapabilityChecker creates a checker granting admin to superusers only
func NewMockCapabilityChecker() *MockCapabilityChecker {
	return &MockCapabilityChecker{}
}

// HasCapability checks a capability
func (m *MockCapabilityChecker) HasCapability(user *domain.User, capability domain.Capability) (bool, error) {
	if m.HasCapabilityFunc != nil {
		return m.HasCapabilityFunc(user, capability)
	}
	if user == nil {
		return false, nil
	}
	if capability == domain.CapabilityAdmin {
		return user.IsSuperuser, nil
	}
	return true, nil
}

// Compile-time interface compliance verification
var _ domain.CapabilityChecker = (*MockCapabilityChecker)(nil)

// MockAuditLogger implements domain.AuditLogger interface for testing
type MockAuditLogger struct {
	mu     sync.Mutex
	Events []*domain.AuditEvent
}

// NewMockAuditLogger creates a recording audit logger
func NewMockAuditLogger() *MockAuditLogger {
	return &MockAuditLogger{}
}

// LogEvent records the event
func (m *MockAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// EventTypes returns the recorded event types in order
func (m *MockAuditLogger) EventTypes() []domain.AuditEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.EventType
	}
	return out
}

// Compile-time interface compliance verification
var _ domain.AuditLogger = (*MockAuditLogger)(nil)
