package domain

import "time"

type ResourceType string

const (
	ResourceRoom      ResourceType = "room"
	ResourceEquipment ResourceType = "equipment"
)

// Resource is a bookable room or piece of equipment.
type Resource struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Type       ResourceType `json:"type" yaml:"type"`
	CalendarID string       `json:"calendarId,omitempty" yaml:"calendarId"`
}

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// TenantPolicy is the resolved per-tenant configuration the core consumes.
type TenantPolicy struct {
	Tenant            string
	TwoStepApproval   bool
	ServicesRequest   bool
	Resources         []Resource
	MaxHoursByRole    map[Role]float64
	DeclineGrace      time.Duration
	CheckoutGrace     time.Duration
	NotifyRequester   bool
	StaffNotification string
}

// Resource looks up a resource by id.
func (p TenantPolicy) Resource(id string) (Resource, bool) {
	for _, r := range p.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// MaxDuration returns the booking length limit for role; ok is false when
// the role is unrestricted.
func (p TenantPolicy) MaxDuration(role Role) (time.Duration, bool) {
	h, ok := p.MaxHoursByRole[role]
	if !ok || h <= 0 {
		return 0, false
	}
	return time.Duration(h * float64(time.Hour)), true
}
