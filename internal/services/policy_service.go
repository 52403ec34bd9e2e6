package services

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/you/websession/domain"
)

// CasbinEnforcerWrapper wraps the real Casbin enforcer to implement our interface
type CasbinEnforcerWrapper struct {
	enforcer *casbin.Enforcer
}

// NewCasbinEnforcerWrapper creates a wrapper for the real Casbin enforcer
func NewCasbinEnforcerWrapper(enforcer *casbin.Enforcer) domain.CasbinEnforcer {
	return &CasbinEnforcerWrapper{enforcer: enforcer}
}

func (w *CasbinEnforcerWrapper) AddPolicy(params ...interface{}) (bool, error) {
	return w.enforcer.AddPolicy(params...)
}

func (w *CasbinEnforcerWrapper) Enforce(rvals ...interface{}) (bool, error) {
	return w.enforcer.Enforce(rvals...)
}

func (w *CasbinEnforcerWrapper) GetPolicy() ([][]string, error) {
	return w.enforcer.GetPolicy()
}

func (w *CasbinEnforcerWrapper) SavePolicy() error {
	return w.enforcer.SavePolicy()
}

// capabilityAction is the only action the policy model knows
const capabilityAction = "access"

// CapabilityService implements domain.CapabilityChecker using Casbin
type CapabilityService struct {
	enforcer domain.CasbinEnforcer
}

// NewCapabilityService creates a new capability service
func NewCapabilityService(enforcer *casbin.Enforcer) *CapabilityService {
	return &CapabilityService{
		enforcer: NewCasbinEnforcerWrapper(enforcer),
	}
}

// NewCapabilityServiceWithEnforcer creates a capability service with a CasbinEnforcer interface (for testing)
func NewCapabilityServiceWithEnforcer(enforcer domain.CasbinEnforcer) *CapabilityService {
	return &CapabilityService{
		enforcer: enforcer,
	}
}

// SubjectFor returns the policy subject of a user
func SubjectFor(user *domain.User) string {
	return "role_" + user.RoleName()
}

// HasCapability implements domain.CapabilityChecker
func (p *CapabilityService) HasCapability(user *domain.User, capability domain.Capability) (bool, error) {
	if user == nil {
		return false, nil
	}
	allowed, err := p.enforcer.Enforce(SubjectFor(user), string(capability), capabilityAction)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	return allowed, nil
}

// EnsurePolicies adds any of policies not yet present. persist saves the
// result through the enforcer's adapter.
func (p *CapabilityService) EnsurePolicies(policies [][]string, persist bool) (int, error) {
	added := 0
	for _, rule := range policies {
		params := make([]interface{}, len(rule))
		for i, v := range rule {
			params[i] = v
		}
		ok, err := p.enforcer.AddPolicy(params...)
		if err != nil {
			return added, fmt.Errorf("failed to add policy %v: %w", rule, err)
		}
		if ok {
			added++
		}
	}
	if persist && added > 0 {
		if err := p.enforcer.SavePolicy(); err != nil {
			return added, fmt.Errorf("failed to save policies: %w", err)
		}
	}
	return added, nil
}

// GetPolicies returns every policy rule
func (p *CapabilityService) GetPolicies() [][]string {
	policies, _ := p.enforcer.GetPolicy()
	return policies
}

var _ domain.CapabilityChecker = (*CapabilityService)(nil)
