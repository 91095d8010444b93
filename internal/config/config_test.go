package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombooking/internal/domain"
)

const sampleTenants = `
tenants:
  - name: mc
    twoStepApproval: true
    servicesRequest: true
    staffNotification: av-desk@example.edu
    declineGrace: 48h
    maxHours:
      student: 4
      faculty: 8
    resources:
      - id: room-101
        name: Studio A
        calendarId: studio-a@group.calendar
      - id: projector-1
        name: Projector
        type: equipment
  - name: itp
    notifyRequester: false
    resources:
      - id: er-1
        name: Edit Room 1
`

func TestParseTenants(t *testing.T) {
	tenants, err := ParseTenants([]byte(sampleTenants))
	require.NoError(t, err)
	assert.Equal(t, []string{"mc", "itp"}, tenants.Names())

	mc, ok := tenants.Policy("mc")
	require.True(t, ok)
	assert.True(t, mc.TwoStepApproval)
	assert.True(t, mc.ServicesRequest)
	assert.True(t, mc.NotifyRequester)
	assert.Equal(t, 48*time.Hour, mc.DeclineGrace)
	assert.Equal(t, "av-desk@example.edu", mc.StaffNotification)

	limit, ok := mc.MaxDuration(domain.RoleStudent)
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, limit)
	_, ok = mc.MaxDuration(domain.RoleAdmin)
	assert.False(t, ok)

	room, ok := mc.Resource("room-101")
	require.True(t, ok)
	assert.Equal(t, domain.ResourceRoom, room.Type)
	projector, _ := mc.Resource("projector-1")
	assert.Equal(t, domain.ResourceEquipment, projector.Type)

	itp, ok := tenants.Policy("itp")
	require.True(t, ok)
	assert.False(t, itp.NotifyRequester)
	assert.False(t, itp.TwoStepApproval)

	_, ok = tenants.Policy("unknown")
	assert.False(t, ok)
}

func TestParseTenants_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        "tenants: []",
		"no name":      "tenants:\n  - resources: []",
		"duplicate":    "tenants:\n  - name: a\n  - name: a",
		"bad role":     "tenants:\n  - name: a\n    maxHours:\n      janitor: 2",
		"bad duration": "tenants:\n  - name: a\n    declineGrace: soon",
		"dup resource": "tenants:\n  - name: a\n    resources:\n      - id: r\n      - id: r",
		"bad type":     "tenants:\n  - name: a\n    resources:\n      - id: r\n        type: car",
		"not yaml":     "tenants: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTenants([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("CRON_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.DeclineGrace)
	assert.Equal(t, 15*time.Minute, cfg.CheckoutGrace)
	assert.Equal(t, "s3cret", cfg.CronSecret)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_ProdRefusesDefaultSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "real-secret")
	t.Setenv("DATABASE_URL", "postgres://app@db/rooms")
	t.Setenv("CRON_SECRET", defaultCronSecret)
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("CRON_SECRET", "rotated")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProdLike())
}
