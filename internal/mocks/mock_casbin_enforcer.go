package mocks

import "github.com/you/websession/domain"

// MockCasbinEnforcer implements the CasbinEnforcer interface for testing.
// Its default Enforce does an exact match against the stored policies.
type MockCasbinEnforcer struct {
	AddPolicyFunc  func(params ...interface{}) (bool, error)
	EnforceFunc    func(rvals ...interface{}) (bool, error)
	GetPolicyFunc  func() ([][]string, error)
	SavePolicyFunc func() error
	policies       [][]string
	SaveCalls      int
}

// Compile-time interface compliance verification
var _ domain.CasbinEnforcer = (*MockCasbinEnforcer)(nil)

// NewMockCasbinEnforcer creates a new MockCasbinEnforcer with no policies
func NewMockCasbinEnforcer() *MockCasbinEnforcer {
	return &MockCasbinEnforcer{}
}

// AddPolicy adds a new policy rule
func (m *MockCasbinEnforcer) AddPolicy(params ...interface{}) (bool, error) {
	if m.AddPolicyFunc != nil {
		return m.AddPolicyFunc(params...)
	}
	policy := toStrings(params)
	for _, existing := range m.policies {
		if equalStrings(existing, policy) {
			return false, nil
		}
	}
	m.policies = append(m.policies, policy)
	return true, nil
}

// Enforce checks a request against the stored policies
func (m *MockCasbinEnforcer) Enforce(rvals ...interface{}) (bool, error) {
	if m.EnforceFunc != nil {
		return m.EnforceFunc(rvals...)
	}
	request := toStrings(rvals)
	for _, policy := range m.policies {
		if equalStrings(policy, request) {
			return true, nil
		}
	}
	return false, nil
}

// GetPolicy returns all policy rules
func (m *MockCasbinEnforcer) GetPolicy() ([][]string, error) {
	if m.GetPolicyFunc != nil {
		return m.GetPolicyFunc()
	}
	out := make([][]string, len(m.policies))
	copy(out, m.policies)
	return out, nil
}

// SavePolicy persists policies
func (m *MockCasbinEnforcer) SavePolicy() error {
	m.SaveCalls++
	if m.SavePolicyFunc != nil {
		return m.SavePolicyFunc()
	}
	return nil
}

func toStrings(params []interface{}) []string {
	out := make([]string, len(params))
	for i, p := range params {
		if s, ok := p.(string); ok {
			out[i] = s
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
