package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"roombooking/internal/domain"
)

type tenantsFile struct {
	Tenants []tenantEntry `yaml:"tenants"`
}

type tenantEntry struct {
	Name              string             `yaml:"name"`
	TwoStepApproval   bool               `yaml:"twoStepApproval"`
	ServicesRequest   bool               `yaml:"servicesRequest"`
	NotifyRequester   *bool              `yaml:"notifyRequester"`
	StaffNotification string             `yaml:"staffNotification"`
	DeclineGrace      string             `yaml:"declineGrace"`
	CheckoutGrace     string             `yaml:"checkoutGrace"`
	MaxHours          map[string]float64 `yaml:"maxHours"`
	Resources         []domain.Resource  `yaml:"resources"`
}

// Tenants is the resolved set of tenant policies, in file order.
type Tenants struct {
	order  []string
	byName map[string]domain.TenantPolicy
}

func NewTenants(policies ...domain.TenantPolicy) *Tenants {
	t := &Tenants{byName: make(map[string]domain.TenantPolicy, len(policies))}
	for _, p := range policies {
		if _, dup := t.byName[p.Tenant]; !dup {
			t.order = append(t.order, p.Tenant)
		}
		t.byName[p.Tenant] = p
	}
	return t
}

func LoadTenants(path string) (*Tenants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseTenants(data)
}

func ParseTenants(data []byte) (*Tenants, error) {
	var f tenantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file defines no tenants")
	}

	policies := make([]domain.TenantPolicy, 0, len(f.Tenants))
	seen := map[string]bool{}
	for i, e := range f.Tenants {
		p, err := e.resolve()
		if err != nil {
			return nil, fmt.Errorf("tenant #%d: %w", i+1, err)
		}
		if seen[p.Tenant] {
			return nil, fmt.Errorf("tenant %q defined twice", p.Tenant)
		}
		seen[p.Tenant] = true
		policies = append(policies, p)
	}
	return NewTenants(policies...), nil
}

func (e tenantEntry) resolve() (domain.TenantPolicy, error) {
	p := domain.TenantPolicy{
		Tenant:            strings.TrimSpace(e.Name),
		TwoStepApproval:   e.TwoStepApproval,
		ServicesRequest:   e.ServicesRequest,
		NotifyRequester:   true,
		StaffNotification: strings.TrimSpace(e.StaffNotification),
		MaxHoursByRole:    map[domain.Role]float64{},
	}
	if p.Tenant == "" {
		return p, fmt.Errorf("name is required")
	}
	if e.NotifyRequester != nil {
		p.NotifyRequester = *e.NotifyRequester
	}

	var err error
	if p.DeclineGrace, err = optionalDuration(e.DeclineGrace); err != nil {
		return p, fmt.Errorf("declineGrace: %w", err)
	}
	if p.CheckoutGrace, err = optionalDuration(e.CheckoutGrace); err != nil {
		return p, fmt.Errorf("checkoutGrace: %w", err)
	}

	for role, hours := range e.MaxHours {
		r := domain.Role(strings.ToLower(strings.TrimSpace(role)))
		switch r {
		case domain.RoleStudent, domain.RoleFaculty, domain.RoleStaff, domain.RoleAdmin:
		default:
			return p, fmt.Errorf("maxHours: unknown role %q", role)
		}
		if hours < 0 {
			return p, fmt.Errorf("maxHours: %s must be >= 0", role)
		}
		p.MaxHoursByRole[r] = hours
	}

	ids := map[string]bool{}
	for _, r := range e.Resources {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			return p, fmt.Errorf("resource without id")
		}
		if ids[r.ID] {
			return p, fmt.Errorf("resource %q listed twice", r.ID)
		}
		ids[r.ID] = true
		switch r.Type {
		case "":
			r.Type = domain.ResourceRoom
		case domain.ResourceRoom, domain.ResourceEquipment:
		default:
			return p, fmt.Errorf("resource %q: unknown type %q", r.ID, r.Type)
		}
		p.Resources = append(p.Resources, r)
	}
	return p, nil
}

func optionalDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must be >= 0")
	}
	return d, nil
}

func (t *Tenants) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Tenants) Policy(name string) (domain.TenantPolicy, bool) {
	p, ok := t.byName[name]
	return p, ok
}
