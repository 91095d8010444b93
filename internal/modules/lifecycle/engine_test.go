package lifecycle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/clock"
)

const requester = "alice@example.edu"

var bookingStart = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func view() BookingView {
	return BookingView{
		RequesterEmail: requester,
		StartTime:      bookingStart,
		EndTime:        bookingStart.Add(time.Hour),
	}
}

func singleStep() domain.TenantPolicy {
	return domain.TenantPolicy{Tenant: "mc"}
}

func twoStep() domain.TenantPolicy {
	return domain.TenantPolicy{Tenant: "itp", TwoStepApproval: true}
}

func newEngineAt(t time.Time) *Engine {
	return NewEngine(clock.NewFake(t))
}

func snapAt(s domain.State) domain.Snapshot {
	return domain.NewSnapshot(domain.Simple(s), false)
}

func TestComputeNext_SingleStepApprove(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))

	res, err := e.ComputeNext(snapAt(domain.StateRequested), domain.Event{Type: domain.EventApprove}, "admin@example.edu", singleStep(), view())
	require.NoError(t, err)

	assert.Equal(t, domain.LabelApproved, domain.LabelFor(res.Snapshot.Value))
	assert.Equal(t, "admin@example.edu", res.Effects.ChangedBy)
	assert.Equal(t, []domain.LegacyField{domain.FieldFirstApproved, domain.FieldFinalApproved}, res.Effects.Stamps)
	assert.Equal(t, CalendarUpdate, res.Effects.Calendar)
	assert.Equal(t, domain.NotifBookingApproved, res.Effects.Notify)
	assert.True(t, res.Snapshot.History.Equal(domain.Simple(domain.StateRequested)))
}

func TestComputeNext_TwoStepApprove(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))

	first, err := e.ComputeNext(snapAt(domain.StateRequested), domain.Event{Type: domain.EventApprove}, "liaison@example.edu", twoStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelPending, domain.LabelFor(first.Snapshot.Value))
	assert.Equal(t, []domain.LegacyField{domain.FieldFirstApproved}, first.Effects.Stamps)

	second, err := e.ComputeNext(first.Snapshot, domain.Event{Type: domain.EventApprove}, "admin@example.edu", twoStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelApproved, domain.LabelFor(second.Snapshot.Value))
	assert.Equal(t, []domain.LegacyField{domain.FieldFinalApproved}, second.Effects.Stamps)
}

func TestComputeNext_DeclineRequiresReason(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))

	_, err := e.ComputeNext(snapAt(domain.StateRequested), domain.Event{Type: domain.EventDecline}, "admin@example.edu", singleStep(), view())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindGuardFailed))

	res, err := e.ComputeNext(snapAt(domain.StateRequested), domain.Event{Type: domain.EventDecline, Reason: "room under maintenance"}, "admin@example.edu", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelDeclined, domain.LabelFor(res.Snapshot.Value))
	assert.Equal(t, "room under maintenance", res.Snapshot.Context.DeclineReason)
	assert.Equal(t, "room under maintenance", res.Effects.Note)
	assert.True(t, res.Effects.ClearTerminal)
	assert.Equal(t, CalendarRelease, res.Effects.Calendar)
}

func TestComputeNext_InvalidTransitionLeavesSnapshotUntouched(t *testing.T) {
	e := newEngineAt(bookingStart)

	for _, s := range domain.AllStates() {
		for _, ev := range domain.AllEventTypes() {
			if Allowed(s, ev) || isReplay(s, ev) {
				continue
			}
			snap := snapAt(s)
			before, err := json.Marshal(snap)
			require.NoError(t, err)

			_, err = e.ComputeNext(snap, domain.Event{Type: ev, Reason: "r"}, "admin@example.edu", twoStep(), view())
			require.Error(t, err, "state=%s event=%s", s, ev)
			assert.True(t, IsKind(err, KindInvalidTransition), "state=%s event=%s err=%v", s, ev, err)

			after, err := json.Marshal(snap)
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after))
		}
	}
}

func TestComputeNext_ReplayIsNoOp(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))

	res, err := e.ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventCancel, Reason: "plans changed"}, requester, singleStep(), view())
	require.NoError(t, err)
	require.False(t, res.Effects.NoOp)

	again, err := e.ComputeNext(res.Snapshot, domain.Event{Type: domain.EventCancel, Reason: "plans changed"}, requester, singleStep(), view())
	require.NoError(t, err)
	assert.True(t, again.Effects.NoOp)

	first, _ := json.Marshal(res.Snapshot)
	second, _ := json.Marshal(again.Snapshot)
	assert.Equal(t, string(first), string(second))
}

func TestComputeNext_CheckInWindow(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		actor   string
		wantErr bool
	}{
		{"staff two hours early", bookingStart.Add(-2 * time.Hour), "desk@example.edu", true},
		{"staff thirty minutes early", bookingStart.Add(-30 * time.Minute), "desk@example.edu", false},
		{"staff exactly one hour early", bookingStart.Add(-time.Hour), "desk@example.edu", false},
		{"requester two hours early", bookingStart.Add(-2 * time.Hour), requester, false},
		{"system two hours early", bookingStart.Add(-2 * time.Hour), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngineAt(tt.now)
			res, err := e.ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventCheckIn}, tt.actor, singleStep(), view())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindGuardFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.LabelCheckedIn, domain.LabelFor(res.Snapshot.Value))
			assert.Equal(t, []domain.LegacyField{domain.FieldCheckedIn}, res.Effects.Stamps)
		})
	}
}

func TestComputeNext_NoShowWindow(t *testing.T) {
	_, err := newEngineAt(bookingStart.Add(29*time.Minute)).ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventNoShow}, "desk@example.edu", singleStep(), view())
	assert.True(t, IsKind(err, KindGuardFailed))

	res, err := newEngineAt(bookingStart.Add(30*time.Minute)).ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventNoShow}, "desk@example.edu", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelNoShow, domain.LabelFor(res.Snapshot.Value))
}

func TestComputeNext_SystemAttributionIsForced(t *testing.T) {
	e := newEngineAt(bookingStart.Add(2 * time.Hour))

	res, err := e.ComputeNext(snapAt(domain.StateNoShow), domain.Event{Type: domain.EventAutoCloseScript}, "cron-runner@example.edu", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.SystemActor, res.Effects.ChangedBy)
	assert.Equal(t, domain.LabelCanceled, res.Effects.AuditStatus)
	assert.Equal(t, domain.SystemActor, res.Snapshot.Context.LastActor)

	closed, err := e.ComputeNext(snapAt(domain.StateCheckedOut), domain.Event{Type: domain.EventClose}, "admin@example.edu", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.SystemActor, closed.Effects.ChangedBy)
	assert.Equal(t, []domain.LegacyField{domain.FieldClosed}, closed.Effects.Stamps)
}

func TestComputeNext_DeclinedCancelIsSystemOnly(t *testing.T) {
	e := newEngineAt(bookingStart)

	_, err := e.ComputeNext(snapAt(domain.StateDeclined), domain.Event{Type: domain.EventCancel}, "admin@example.edu", singleStep(), view())
	assert.True(t, IsKind(err, KindInvalidTransition))

	res, err := e.ComputeNext(snapAt(domain.StateDeclined), domain.Event{Type: domain.EventCancel, Reason: "auto"}, "", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelCanceled, domain.LabelFor(res.Snapshot.Value))
	assert.Equal(t, domain.SystemActor, res.Effects.ChangedBy)
}

func TestComputeNext_Edit(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))
	newEnd := bookingStart.Add(2 * time.Hour)
	changes := &domain.EditChanges{EndTime: &newEnd}

	staff, err := e.ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventEdit, Changes: changes}, "admin@example.edu", singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelApproved, domain.LabelFor(staff.Snapshot.Value))
	assert.Equal(t, domain.LabelModified, staff.Effects.AuditStatus)
	assert.Empty(t, staff.Effects.Stamps)
	assert.Same(t, changes, staff.Effects.Reschedule)
	assert.Equal(t, 1, staff.Snapshot.Context.EditCount)

	_, err = e.ComputeNext(snapAt(domain.StateApproved), domain.Event{Type: domain.EventEdit}, requester, singleStep(), view())
	assert.True(t, IsKind(err, KindGuardFailed))

	fromModified, err := e.ComputeNext(snapAt(domain.StateModified), domain.Event{Type: domain.EventEdit}, requester, singleStep(), view())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelRequested, domain.LabelFor(fromModified.Snapshot.Value))

	badEnd := bookingStart.Add(-time.Hour)
	_, err = e.ComputeNext(snapAt(domain.StateRequested), domain.Event{Type: domain.EventEdit, Changes: &domain.EditChanges{EndTime: &badEnd}}, requester, singleStep(), view())
	assert.True(t, IsKind(err, KindGuardFailed))
}

func TestComputeNext_ServicesSubMachine(t *testing.T) {
	e := newEngineAt(bookingStart.Add(-48 * time.Hour))
	policy := domain.TenantPolicy{Tenant: "mc", TwoStepApproval: true, ServicesRequest: true}
	snap := domain.NewSnapshot(domain.Simple(domain.StateRequested), true)

	first, err := e.ComputeNext(snap, domain.Event{Type: domain.EventApprove}, "liaison@example.edu", policy, view())
	require.NoError(t, err)
	assert.True(t, first.Snapshot.Value.Equal(domain.Simple(domain.StatePending)))

	final, err := e.ComputeNext(first.Snapshot, domain.Event{Type: domain.EventApprove}, "admin@example.edu", policy, view())
	require.NoError(t, err)
	assert.True(t, final.Snapshot.Value.Equal(domain.InServices(domain.ServicesPending)))
	assert.Equal(t, domain.LabelPending, domain.LabelFor(final.Snapshot.Value))
	assert.Equal(t, []domain.LegacyField{domain.FieldFinalApproved}, final.Effects.Stamps)
	assert.Equal(t, domain.NotifServicesPending, final.Effects.Notify)

	services, err := e.ComputeNext(final.Snapshot, domain.Event{Type: domain.EventApprove}, "services@example.edu", policy, view())
	require.NoError(t, err)
	assert.True(t, services.Snapshot.Value.Equal(domain.InServices(domain.ServicesApproved)))
	assert.Equal(t, domain.LabelApproved, domain.LabelFor(services.Snapshot.Value))
	assert.Empty(t, services.Effects.Stamps)
	require.NotNil(t, services.Snapshot.Context.ServicesDecidedAt)

	replay, err := e.ComputeNext(services.Snapshot, domain.Event{Type: domain.EventApprove}, "services@example.edu", policy, view())
	require.NoError(t, err)
	assert.True(t, replay.Effects.NoOp)

	declined, err := e.ComputeNext(final.Snapshot, domain.Event{Type: domain.EventDecline, Reason: "no AV staff"}, "services@example.edu", policy, view())
	require.NoError(t, err)
	assert.True(t, declined.Snapshot.Value.Equal(domain.InServices(domain.ServicesDeclined)))
	assert.Equal(t, domain.LabelDeclined, domain.LabelFor(declined.Snapshot.Value))
}

func TestComputeNext_EmptySnapshotIsInvalid(t *testing.T) {
	_, err := newEngineAt(bookingStart).ComputeNext(domain.Snapshot{}, domain.Event{Type: domain.EventApprove}, "admin@example.edu", singleStep(), view())
	assert.True(t, IsKind(err, KindInvalidTransition))
}

func TestStateValueJSON(t *testing.T) {
	b, err := json.Marshal(domain.InServices(domain.ServicesPending))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ServicesRequest":"pending"}`, string(b))

	var v domain.StateValue
	require.NoError(t, json.Unmarshal([]byte(`"CheckedIn"`), &v))
	assert.True(t, v.Equal(domain.Simple(domain.StateCheckedIn)))

	require.NoError(t, json.Unmarshal(b, &v))
	sub, ok := v.Services()
	require.True(t, ok)
	assert.Equal(t, domain.ServicesPending, sub)

	assert.Error(t, json.Unmarshal([]byte(`{"Other":"pending"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`"Unknown"`), &v))
}

func TestFromLegacy(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := t0.Add(d); return &v }

	assert.True(t, FromLegacy(domain.LegacyStamps{}).Equal(domain.Simple(domain.StateRequested)))

	declinedThenApproved := domain.LegacyStamps{
		Requested:     domain.Stamp{At: at(0)},
		Declined:      domain.Stamp{At: at(time.Hour)},
		FinalApproved: domain.Stamp{At: at(2 * time.Hour)},
	}
	assert.True(t, FromLegacy(declinedThenApproved).Equal(domain.Simple(domain.StateApproved)))

	firstOnly := domain.LegacyStamps{
		Requested:     domain.Stamp{At: at(0)},
		FirstApproved: domain.Stamp{At: at(time.Hour)},
	}
	assert.True(t, FromLegacy(firstOnly).Equal(domain.Simple(domain.StatePending)))
}
