// Package lifecycle keeps bookings and their door-code credentials in
// lockstep by reacting to booking change events.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "prayerroom/internal/bookings/errors"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/credentials"
	"prayerroom/internal/metrics"
	"prayerroom/internal/notifications"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"
	"time"
)

const MessageSlotUnavailable = "Time slot is no longer available"

// Bookings is the slice of the booking store the orchestrator writes through.
type Bookings interface {
	Get(ctx context.Context, id string) (*model.Booking, error)
	Update(ctx context.Context, id string, patch *model.BookingPatch) (*model.Booking, error)
}

type SlotChecker interface {
	IsSlotFree(ctx context.Context, resourceID, date, tod, excludeID string) (bool, error)
	ClaimSlot(ctx context.Context, booking *model.Booking) (bool, error)
	ReleaseSlot(ctx context.Context, booking *model.Booking) error
}

type Orchestrator struct {
	bookings Bookings
	checker  SlotChecker
	gateway  credentials.Gateway
	mail     notifications.Queue
	clock    slot.Clock
	now      func() time.Time
	log      *logger.Logger
}

func NewOrchestrator(
	bookings Bookings,
	checker SlotChecker,
	gateway credentials.Gateway,
	mail notifications.Queue,
	clock slot.Clock,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		bookings: bookings,
		checker:  checker,
		gateway:  gateway,
		mail:     mail,
		clock:    clock,
		now:      time.Now,
		log:      log,
	}
}

// Handle runs the transition for one change event. Domain failures end as a
// terminal booking status; an error is returned only when that status could
// not be written, so the caller may retry.
func (o *Orchestrator) Handle(ctx context.Context, event events.ChangeEvent) error {
	var (
		outcome string
		err     error
	)
	switch event.Type {
	case events.Created:
		outcome, err = o.onCreated(ctx, event)
	case events.Updated:
		outcome, err = o.onUpdated(ctx, event)
	case events.Deleted:
		outcome, err = o.onDeleted(ctx, event)
	default:
		o.log.Warn("Ignoring unknown change event", "event_id", event.ID, "event_type", event.Type)
		return nil
	}

	if err != nil {
		outcome = "failed"
	}
	metrics.ObserveTransition(string(event.Type), outcome)
	if outcome != "noop" {
		o.log.Info("Booking change handled",
			"event_id", event.ID,
			"event_type", event.Type,
			"booking_id", event.BookingID,
			"outcome", outcome,
		)
	}
	return err
}

func (o *Orchestrator) onCreated(ctx context.Context, event events.ChangeEvent) (string, error) {
	booking, err := o.bookings.Get(ctx, event.BookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return "noop", nil
		}
		return "", fmt.Errorf("failed to load booking %s: %w", event.BookingID, err)
	}
	if booking.Status != model.StatusPending {
		return "noop", nil
	}

	claimed, err := o.checker.ClaimSlot(ctx, booking)
	if err != nil {
		return o.fail(ctx, booking, err)
	}
	if !claimed {
		return o.conflict(ctx, booking)
	}

	free, err := o.checker.IsSlotFree(ctx, booking.ResourceID, booking.Date, booking.Time, booking.ID)
	if err != nil {
		return o.fail(ctx, booking, err)
	}
	if !free {
		o.release(ctx, booking)
		return o.conflict(ctx, booking)
	}

	cred, err := o.issue(ctx, booking)
	if err != nil {
		return o.fail(ctx, booking, err)
	}

	patch := model.StatusPatch(model.StatusConfirmed, "")
	patch.Credential = cred
	patch.ExpectStatus = model.StatusPending
	confirmed, err := o.bookings.Update(ctx, booking.ID, patch)
	if err != nil {
		o.revoke(ctx, booking.ID, cred.CredentialID)
		if isGone(err) {
			o.release(ctx, booking)
			return "superseded", nil
		}
		return "", fmt.Errorf("failed to confirm booking %s: %w", booking.ID, err)
	}

	o.notify(ctx, notifications.Confirmation(confirmed))
	return model.StatusConfirmed, nil
}

func (o *Orchestrator) onUpdated(ctx context.Context, event events.ChangeEvent) (string, error) {
	before, after := event.Before, event.After
	if before == nil || after == nil {
		return "noop", nil
	}

	if after.Status == model.StatusCancelled {
		if before.Status == model.StatusCancelled {
			return "noop", nil
		}
		return o.onCancelled(ctx, after)
	}

	if !before.SameSlot(after) {
		return o.onRescheduled(ctx, before, after)
	}
	return "noop", nil
}

func (o *Orchestrator) onCancelled(ctx context.Context, booking *model.Booking) (string, error) {
	if booking.Credential != nil {
		o.revoke(ctx, booking.ID, booking.Credential.CredentialID)
		if _, err := o.bookings.Update(ctx, booking.ID, &model.BookingPatch{ClearCredential: true}); err != nil && !isGone(err) {
			return "", fmt.Errorf("failed to clear credential of %s: %w", booking.ID, err)
		}
	}
	o.release(ctx, booking)
	o.notify(ctx, notifications.Cancellation(booking))
	return model.StatusCancelled, nil
}

func (o *Orchestrator) onRescheduled(ctx context.Context, before, after *model.Booking) (string, error) {
	current, err := o.bookings.Get(ctx, after.ID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return "noop", nil
		}
		return "", fmt.Errorf("failed to load booking %s: %w", after.ID, err)
	}
	// A later write moved or cancelled the booking; its own event handles it.
	if !current.SameSlot(after) || current.Status != model.StatusConfirmed {
		return "noop", nil
	}

	claimed, err := o.checker.ClaimSlot(ctx, current)
	if err != nil {
		return o.fail(ctx, current, err)
	}
	if !claimed {
		o.release(ctx, before)
		return o.conflict(ctx, current)
	}

	free, err := o.checker.IsSlotFree(ctx, current.ResourceID, current.Date, current.Time, current.ID)
	if err != nil {
		return o.fail(ctx, current, err)
	}
	if !free {
		o.release(ctx, current)
		o.release(ctx, before)
		return o.conflict(ctx, current)
	}
	o.release(ctx, before)

	// The credential moves only if it is the one issued for the old slot.
	// Otherwise the created event already issued it for the new one.
	if before.Credential == nil || current.Credential == nil ||
		current.Credential.CredentialID != before.Credential.CredentialID {
		if before.Credential == nil && current.Credential == nil && before.Status == model.StatusConfirmed {
			o.notify(ctx, notifications.Update(current))
		}
		return "moved", nil
	}

	o.revoke(ctx, current.ID, current.Credential.CredentialID)
	// Revoked; fail must not revoke it again.
	current.Credential = nil

	cred, err := o.issue(ctx, current)
	if err != nil {
		return o.fail(ctx, current, err)
	}

	updated, err := o.bookings.Update(ctx, current.ID, &model.BookingPatch{
		Credential:   cred,
		ExpectStatus: model.StatusConfirmed,
	})
	if err != nil {
		o.revoke(ctx, current.ID, cred.CredentialID)
		if isGone(err) {
			return "superseded", nil
		}
		return "", fmt.Errorf("failed to store reissued credential for %s: %w", current.ID, err)
	}

	o.notify(ctx, notifications.Update(updated))
	return "rescheduled", nil
}

func (o *Orchestrator) onDeleted(ctx context.Context, event events.ChangeEvent) (string, error) {
	booking := event.Before
	if booking == nil {
		return "noop", nil
	}
	if booking.Credential != nil {
		o.revoke(ctx, booking.ID, booking.Credential.CredentialID)
	}
	o.release(ctx, booking)
	return "deleted", nil
}

// conflict marks the booking as having lost its slot. A credential it still
// carries is revoked first.
func (o *Orchestrator) conflict(ctx context.Context, booking *model.Booking) (string, error) {
	patch := model.StatusPatch(model.StatusConflict, MessageSlotUnavailable)
	patch.ExpectStatus = booking.Status
	if booking.Credential != nil {
		o.revoke(ctx, booking.ID, booking.Credential.CredentialID)
		patch.ClearCredential = true
	}

	if _, err := o.bookings.Update(ctx, booking.ID, patch); err != nil && !isGone(err) {
		return "", fmt.Errorf("failed to mark booking %s as conflict: %w", booking.ID, err)
	}
	return model.StatusConflict, nil
}

// fail records cause on the booking as a terminal error and frees its slot.
// A credential still on the booking is revoked; the stored one is cleared.
func (o *Orchestrator) fail(ctx context.Context, booking *model.Booking, cause error) (string, error) {
	o.log.Error("Booking lifecycle step failed",
		"booking_id", booking.ID,
		"status", booking.Status,
		"error", cause,
	)

	patch := model.StatusPatch(model.StatusError, failureMessage(cause))
	patch.ExpectStatus = booking.Status
	patch.ClearCredential = true
	if booking.Credential != nil {
		o.revoke(ctx, booking.ID, booking.Credential.CredentialID)
	}

	if _, err := o.bookings.Update(ctx, booking.ID, patch); err != nil && !isGone(err) {
		return "", fmt.Errorf("failed to mark booking %s as error: %w", booking.ID, err)
	}
	o.release(ctx, booking)
	return model.StatusError, nil
}

func failureMessage(err error) string {
	var upstream *credentials.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "Door code could not be issued: " + upstream.Error()
	case errors.Is(err, credentials.ErrUnmappedResource):
		return "No door lock is configured for this room"
	default:
		return err.Error()
	}
}

func (o *Orchestrator) issue(ctx context.Context, booking *model.Booking) (*model.Credential, error) {
	start, end, err := o.clock.Window(booking.Date, booking.Time)
	if err != nil {
		return nil, err
	}

	cred, err := o.gateway.CreateCredential(ctx, booking.ResourceID, start, end, booking.HolderName(), booking.HolderEmail())
	if err != nil {
		return nil, err
	}
	return &model.Credential{
		CredentialID: cred.ID,
		AccessCode:   cred.AccessCode,
		IssuedAt:     o.now().UTC(),
	}, nil
}

// revoke never fails the caller. A credential left active is an operational
// alert, not a user-facing error.
func (o *Orchestrator) revoke(ctx context.Context, bookingID, credentialID string) {
	if err := o.gateway.RevokeCredential(ctx, credentialID); err != nil {
		metrics.IncRevocationFailure()
		o.log.Error("Failed to revoke credential",
			"booking_id", bookingID,
			"credential_id", credentialID,
			"error", err,
		)
	}
}

func (o *Orchestrator) release(ctx context.Context, booking *model.Booking) {
	if err := o.checker.ReleaseSlot(ctx, booking); err != nil {
		o.log.Warn("Failed to release slot claim",
			"booking_id", booking.ID,
			"slot", booking.SlotKey(),
			"error", err,
		)
	}
}

// notify is fire-and-forget. A failed notice never rolls back the booking.
func (o *Orchestrator) notify(ctx context.Context, n notifications.Notification) {
	err := o.mail.Enqueue(ctx, n)
	metrics.ObserveNotification(n.Template.Name, err)
	if err != nil {
		o.log.Warn("Failed to enqueue notification",
			"template", n.Template.Name,
			"booking_id", n.Template.Data.BookingID,
			"error", err,
		)
	}
}

func isGone(err error) bool {
	return errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrStatusChanged)
}
