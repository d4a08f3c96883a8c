package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"prayerroom/internal/bookings/availability"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/repository"
	"prayerroom/internal/bookings/store"
	"prayerroom/internal/credentials"
	"prayerroom/internal/credentials/credentialstest"
	"prayerroom/internal/notifications"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	repo       *repository.MemoryBookingRepository
	claims     *repository.MemorySlotClaimRepository
	store      *store.Store
	gateway    *credentialstest.Gateway
	mail       *notifications.MemoryQueue
	dispatcher *Dispatcher
	orch       *Orchestrator
	loc        *time.Location
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := newPausedHarness(t)
	h.dispatcher.Start(context.Background())
	return h
}

// newPausedHarness queues events without handling them until the
// dispatcher is started.
func newPausedHarness(t *testing.T) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	h := &harness{
		repo:    repository.NewMemoryBookingRepository(),
		claims:  repository.NewMemorySlotClaimRepository(),
		gateway: credentialstest.NewGateway(),
		mail:    notifications.NewMemoryQueue(),
		loc:     loc,
	}
	h.repo.SetClock(func() time.Time { return now })

	checker := availability.NewChecker(h.repo, h.claims, slot.NewClock(loc, time.Hour), 30*time.Minute, logger.Discard())
	checker.SetNow(func() time.Time { return now })

	hub := events.NewHub()
	dispatch := events.PublisherFunc(func(ctx context.Context, e events.ChangeEvent) error {
		return h.dispatcher.Publish(ctx, e)
	})
	h.store = store.New(h.repo, events.Fanout{hub, dispatch}, hub, logger.Discard())
	h.orch = NewOrchestrator(h.store, checker, h.gateway, h.mail, checker.Clock(), logger.Discard())
	h.dispatcher = NewDispatcher(h.orch, 4, logger.Discard())
	t.Cleanup(h.dispatcher.Stop)
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.dispatcher.Drain(ctx))
}

func pending(name, email, tod string) *model.Booking {
	return &model.Booking{
		ResourceID:      "prayer_room",
		Date:            "2026-01-16",
		Time:            tod,
		DurationMinutes: 60,
		Status:          model.StatusPending,
		Name:            name,
		Email:           email,
	}
}

func (h *harness) book(t *testing.T, name, email, tod string) *model.Booking {
	t.Helper()
	b := pending(name, email, tod)
	require.NoError(t, h.store.Create(context.Background(), b))
	h.drain(t)
	return h.get(t, b.ID)
}

func (h *harness) get(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) update(t *testing.T, id string, patch *model.BookingPatch) {
	t.Helper()
	_, err := h.store.Update(context.Background(), id, patch)
	require.NoError(t, err)
	h.drain(t)
}

func ptr[T any](v T) *T {
	return &v
}

func TestCreate_Confirms(t *testing.T) {
	h := newHarness(t)

	b := h.book(t, "Alice", "a@x.com", "14:00")

	assert.Equal(t, model.StatusConfirmed, b.Status)
	require.NotNil(t, b.Credential)
	assert.Regexp(t, `^[0-9]{4}$`, b.Credential.AccessCode)
	assert.Equal(t, 1, h.gateway.CreateCount())

	call := h.gateway.LastCreate()
	assert.Equal(t, "prayer_room", call.ResourceID)
	assert.Equal(t, "2026-01-16T14:00:00-05:00", call.Start.In(h.loc).Format(time.RFC3339))
	assert.Equal(t, time.Hour, call.End.Sub(call.Start))
	assert.Equal(t, "Alice", call.HolderName)

	sent := h.mail.ByTemplate(notifications.TemplateConfirmation)
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].To)
	assert.Equal(t, b.Credential.AccessCode, sent[0].Template.Data.AccessCode)
	assert.Equal(t, "2:00 PM", sent[0].Template.Data.Time)
}

func TestCreate_CredentialWindowIsOneSlot(t *testing.T) {
	h := newHarness(t)
	long := pending("Alice", "a@x.com", "14:00")
	long.DurationMinutes = 480
	require.NoError(t, h.store.Create(context.Background(), long))
	h.drain(t)
	aliceWindow := h.gateway.LastCreate()

	bob := h.book(t, "Bob", "b@x.com", "15:00")

	assert.Equal(t, model.StatusConfirmed, h.get(t, long.ID).Status)
	assert.Equal(t, time.Hour, aliceWindow.End.Sub(aliceWindow.Start))
	assert.Equal(t, model.StatusConfirmed, bob.Status)
	assert.False(t, h.gateway.LastCreate().Start.Before(aliceWindow.End), "door code windows must not overlap")
}

func TestCreate_SecondBookingForSlotConflicts(t *testing.T) {
	h := newHarness(t)
	h.book(t, "Alice", "a@x.com", "14:00")

	second := h.book(t, "Bob", "b@x.com", "14:00")

	assert.Equal(t, model.StatusConflict, second.Status)
	assert.Equal(t, MessageSlotUnavailable, second.Error)
	assert.Nil(t, second.Credential)
	assert.Equal(t, 1, h.gateway.CreateCount())
	assert.Len(t, h.mail.ByTemplate(notifications.TemplateConfirmation), 1)
}

func TestCreate_InsideLeadTimeConflicts(t *testing.T) {
	h := newHarness(t)
	b := &model.Booking{
		ResourceID: "prayer_room",
		Date:       "2026-01-10",
		Time:       "07:00",
		Status:     model.StatusPending,
		Name:       "Alice",
		Email:      "a@x.com",
	}
	require.NoError(t, h.store.Create(context.Background(), b))
	h.drain(t)

	got := h.get(t, b.ID)
	assert.Equal(t, model.StatusConflict, got.Status)
	assert.Zero(t, h.gateway.CreateCount())

	holder, err := h.claims.Holder(context.Background(), b.SlotKey())
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestCreate_GatewayFailureMarksError(t *testing.T) {
	h := newHarness(t)
	h.gateway.SetCreateErr(&credentials.UpstreamError{Operation: "create", Status: 502, Message: "bad gateway"})

	b := h.book(t, "Alice", "a@x.com", "14:00")

	assert.Equal(t, model.StatusError, b.Status)
	assert.Contains(t, b.Error, "Door code could not be issued")
	assert.Nil(t, b.Credential)
	assert.Empty(t, h.mail.Items())

	holder, err := h.claims.Holder(context.Background(), b.SlotKey())
	require.NoError(t, err)
	assert.Empty(t, holder, "failed booking keeps no claim")

	h.gateway.SetCreateErr(nil)
	next := h.book(t, "Bob", "b@x.com", "14:00")
	assert.Equal(t, model.StatusConfirmed, next.Status)
}

func TestCreate_UnmappedResource(t *testing.T) {
	h := newHarness(t)
	h.gateway.SetCreateErr(fmt.Errorf("resource %q: %w", "prayer_room", credentials.ErrUnmappedResource))

	b := h.book(t, "Alice", "a@x.com", "14:00")

	assert.Equal(t, model.StatusError, b.Status)
	assert.Equal(t, "No door lock is configured for this room", b.Error)
}

func TestCreate_NotificationFailureKeepsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.mail.FailWith(errors.New("mail store down"))

	b := h.book(t, "Alice", "a@x.com", "14:00")

	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.NotNil(t, b.Credential)
}

func TestCreate_ConcurrentRequestsConfirmExactlyOne(t *testing.T) {
	h := newHarness(t)
	const n = 10

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := &model.Booking{
				ResourceID: "prayer_room",
				Date:       "2026-01-16",
				Time:       "14:00",
				Status:     model.StatusPending,
				Name:       fmt.Sprintf("Guest %d", i),
				Email:      fmt.Sprintf("g%d@x.com", i),
			}
			assert.NoError(t, h.store.Create(context.Background(), b))
			ids[i] = b.ID
		}(i)
	}
	wg.Wait()
	h.drain(t)

	confirmed, conflicted := 0, 0
	for _, id := range ids {
		b := h.get(t, id)
		switch b.Status {
		case model.StatusConfirmed:
			confirmed++
			assert.NotNil(t, b.Credential)
		case model.StatusConflict:
			conflicted++
			assert.Nil(t, b.Credential)
		default:
			t.Errorf("booking %s ended as %s", id, b.Status)
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, n-1, conflicted)
	assert.Equal(t, 1, h.gateway.Active())
}

func TestReschedule_RevokesThenReissues(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")
	oldCredential := b.Credential.CredentialID

	h.update(t, b.ID, &model.BookingPatch{Time: ptr("15:00")})

	got := h.get(t, b.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	require.NotNil(t, got.Credential)
	assert.NotEqual(t, oldCredential, got.Credential.CredentialID)

	assert.Equal(t, []string{oldCredential}, h.gateway.RevokedIDs())
	assert.Equal(t, 2, h.gateway.CreateCount())
	assert.Equal(t, "2026-01-16T15:00:00-05:00", h.gateway.LastCreate().Start.In(h.loc).Format(time.RFC3339))
	assert.Equal(t, 1, h.gateway.Active())

	updates := h.mail.ByTemplate(notifications.TemplateUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, got.Credential.AccessCode, updates[0].Template.Data.AccessCode)
	assert.Equal(t, "3:00 PM", updates[0].Template.Data.Time)

	old := &model.Booking{ResourceID: "prayer_room", Date: "2026-01-16", Time: "14:00"}
	holder, err := h.claims.Holder(context.Background(), old.SlotKey())
	require.NoError(t, err)
	assert.Empty(t, holder, "old slot is released")

	freed := h.book(t, "Bob", "b@x.com", "14:00")
	assert.Equal(t, model.StatusConfirmed, freed.Status)
}

func TestReschedule_BeforeCreatedIsHandledIssuesOnce(t *testing.T) {
	h := newPausedHarness(t)
	ctx := context.Background()
	b := pending("Alice", "a@x.com", "14:00")
	require.NoError(t, h.store.Create(ctx, b))
	_, err := h.store.Update(ctx, b.ID, &model.BookingPatch{Time: ptr("15:00")})
	require.NoError(t, err)

	h.dispatcher.Start(ctx)
	h.drain(t)

	got := h.get(t, b.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "15:00", got.Time)
	require.NotNil(t, got.Credential)

	assert.Equal(t, 1, h.gateway.CreateCount())
	assert.Zero(t, h.gateway.RevokeCount())
	assert.Equal(t, 1, h.gateway.Active())
	assert.Equal(t, "2026-01-16T15:00:00-05:00", h.gateway.LastCreate().Start.In(h.loc).Format(time.RFC3339))

	assert.Len(t, h.mail.ByTemplate(notifications.TemplateConfirmation), 1)
	assert.Empty(t, h.mail.ByTemplate(notifications.TemplateUpdate))

	holder, err := h.claims.Holder(ctx, pending("", "", "14:00").SlotKey())
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestReschedule_OntoTakenSlotConflicts(t *testing.T) {
	h := newHarness(t)
	h.book(t, "Bob", "b@x.com", "15:00")
	b := h.book(t, "Alice", "a@x.com", "14:00")

	h.update(t, b.ID, &model.BookingPatch{Time: ptr("15:00")})

	got := h.get(t, b.ID)
	assert.Equal(t, model.StatusConflict, got.Status)
	assert.Nil(t, got.Credential)
	assert.Contains(t, h.gateway.RevokedIDs(), b.Credential.CredentialID)
	assert.Equal(t, 1, h.gateway.Active())
}

func TestUpdate_SameSlotIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")

	h.update(t, b.ID, &model.BookingPatch{Name: ptr("Alice B")})

	assert.Equal(t, 1, h.gateway.CreateCount())
	assert.Zero(t, h.gateway.RevokeCount())
	assert.Empty(t, h.mail.ByTemplate(notifications.TemplateUpdate))
}

func TestCancel_RevokesAndNotifies(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")

	h.update(t, b.ID, &model.BookingPatch{Status: ptr(model.StatusCancelled)})

	got := h.get(t, b.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Nil(t, got.Credential)
	assert.Equal(t, []string{b.Credential.CredentialID}, h.gateway.RevokedIDs())
	assert.Equal(t, 1, h.gateway.CreateCount())

	sent := h.mail.ByTemplate(notifications.TemplateCancellation)
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Template.Data.AccessCode)

	again := h.book(t, "Bob", "b@x.com", "14:00")
	assert.Equal(t, model.StatusConfirmed, again.Status)
}

func TestDelete_RevokesOnce(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")

	_, err := h.store.Delete(context.Background(), b.ID)
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, []string{b.Credential.CredentialID}, h.gateway.RevokedIDs())
	assert.Zero(t, h.gateway.Active())
}

func TestDelete_ReplayedEventIsHarmless(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")

	event := events.NewDeleted(b)
	require.NoError(t, h.orch.Handle(context.Background(), event))
	require.NoError(t, h.orch.Handle(context.Background(), event))

	assert.Zero(t, h.gateway.Active())
	assert.Len(t, h.gateway.RevokedIDs(), 2)
}

func TestCreated_ReplayForSettledBookingIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, "Alice", "a@x.com", "14:00")

	require.NoError(t, h.orch.Handle(context.Background(), events.NewCreated(b)))

	assert.Equal(t, 1, h.gateway.CreateCount())
	assert.Len(t, h.mail.Items(), 1)
}

func TestCredentialPresentOnlyWhenConfirmed(t *testing.T) {
	h := newHarness(t)
	confirmed := h.book(t, "Alice", "a@x.com", "14:00")
	conflict := h.book(t, "Bob", "b@x.com", "14:00")
	cancelled := h.book(t, "Carol", "c@x.com", "16:00")
	h.update(t, cancelled.ID, &model.BookingPatch{Status: ptr(model.StatusCancelled)})

	all, err := h.store.Query(context.Background(), repository.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, b := range all {
		assert.Equal(t, b.Status == model.StatusConfirmed, b.Credential != nil, "booking %s (%s)", b.ID, b.Status)
	}
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	assert.Equal(t, model.StatusConflict, conflict.Status)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "boom", failureMessage(errors.New("boom")))
	assert.Contains(t, failureMessage(&credentials.UpstreamError{Operation: "create", Message: "request timed out"}), "request timed out")
}
