package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"roombooking/internal/app"
	"roombooking/internal/config"
	"roombooking/internal/domain"
	"roombooking/internal/modules/booking"
)

// seed creates a handful of demo bookings per tenant for local runs.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProdLike() {
		log.Fatal("refusing to seed a prod-like environment")
	}
	app.SetupLogger(cfg)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Error("close_failed", "error", err)
		}
	}()

	day := time.Now().UTC().Truncate(24 * time.Hour).Add(48 * time.Hour)
	for _, tenant := range a.Tenants.Names() {
		policy, _ := a.Tenants.Policy(tenant)
		if len(policy.Resources) == 0 {
			slog.Warn("seed_skip_tenant", "tenant", tenant, "reason", "no resources")
			continue
		}
		room := policy.Resources[0].ID

		plan := []struct {
			hour   int
			events []domain.Event
		}{
			{hour: 9},
			{hour: 11, events: []domain.Event{{Type: domain.EventApprove}}},
			{hour: 13, events: []domain.Event{{Type: domain.EventDecline, Reason: "Room reserved for maintenance"}}},
			{hour: 15, events: []domain.Event{{Type: domain.EventApprove}, {Type: domain.EventCancel, Reason: "Plans changed"}}},
		}
		for i, p := range plan {
			start := day.Add(time.Duration(p.hour) * time.Hour)
			b, err := a.Coordinator.Submit(ctx, booking.SubmitRequest{
				Tenant:         tenant,
				RequesterEmail: "student@example.edu",
				Role:           domain.RoleStudent,
				ResourceIDs:    []string{room},
				StartTime:      start,
				EndTime:        start.Add(time.Hour),
				Title:          "Demo booking",
			})
			if err != nil {
				log.Fatalf("seed %s #%d: %v", tenant, i+1, err)
			}
			for _, ev := range p.events {
				if _, err := a.Coordinator.Apply(ctx, booking.TransitionCommand{
					Tenant:          tenant,
					CalendarEventID: b.CalendarEventID,
					Event:           ev,
					ActorEmail:      "staff@example.edu",
				}); err != nil {
					log.Fatalf("seed %s #%d %s: %v", tenant, i+1, ev.Type, err)
				}
			}
		}
		slog.Info("seed_tenant_done", "tenant", tenant, "bookings", len(plan))
	}
}
