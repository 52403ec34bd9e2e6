package auth

import (
	"fmt"
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// DefaultModel is used when no model file is configured
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// DefaultPolicies grant the dashboard to every role and the admin area to admins
var DefaultPolicies = [][]string{
	{"role_admin", "admin", "access"},
	{"role_admin", "dashboard", "access"},
	{"role_user", "dashboard", "access"},
}

type CasbinService struct{ E *casbin.Enforcer }

// NewCasbinService builds the enforcer. Policies live in db through the GORM
// adapter when db is set, in memory otherwise. An empty modelPath selects DefaultModel.
func NewCasbinService(db *gorm.DB, modelPath string) (*CasbinService, error) {
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, err
	}

	var e *casbin.Enforcer
	if db != nil {
		adp, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
		}
		e, err = casbin.NewEnforcer(m, adp)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
		if err := e.LoadPolicy(); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	} else {
		e, err = casbin.NewEnforcer(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
	}
	return &CasbinService{E: e}, nil
}

func loadModel(path string) (model.Model, error) {
	if path == "" {
		return model.NewModelFromString(DefaultModel)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("casbin model %s: %w", path, err)
	}
	m, err := model.NewModelFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}
	return m, nil
}
