// Package notifications enqueues booking notices into the Mail collection.
// Delivery is handled elsewhere; enqueueing is the whole contract.
package notifications

import (
	"context"
	"errors"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"
	"time"
)

const (
	CollectionName = "Mail"

	TemplateConfirmation = "booking-confirmation"
	TemplateCancellation = "booking-cancellation"
	TemplateUpdate       = "booking-update"
)

var ErrNoRecipient = errors.New("notification has no recipient")

type Notification struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	To        string    `json:"to" bson:"to"`
	Template  Template  `json:"template" bson:"template"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Template struct {
	Name string       `json:"name" bson:"name"`
	Data TemplateData `json:"data" bson:"data"`
}

type TemplateData struct {
	Name       string `json:"name" bson:"name"`
	Date       string `json:"date" bson:"date"`
	Time       string `json:"time" bson:"time"`
	AccessCode string `json:"access_code,omitempty" bson:"access_code,omitempty"`
	Label      string `json:"label" bson:"label"`
	BookingID  string `json:"booking_id" bson:"booking_id"`
}

type Queue interface {
	Enqueue(ctx context.Context, n Notification) error
}

func Confirmation(b *model.Booking) Notification {
	return build(TemplateConfirmation, b, true)
}

func Cancellation(b *model.Booking) Notification {
	return build(TemplateCancellation, b, false)
}

func Update(b *model.Booking) Notification {
	return build(TemplateUpdate, b, true)
}

func build(template string, b *model.Booking, withCode bool) Notification {
	data := TemplateData{
		Name:      b.HolderName(),
		Date:      slot.FormatDate(b.Date),
		Time:      slot.FormatTime(b.Time),
		Label:     b.Label(),
		BookingID: b.ID,
	}
	if withCode && b.Credential != nil {
		data.AccessCode = b.Credential.AccessCode
	}
	return Notification{
		To:       b.HolderEmail(),
		Template: Template{Name: template, Data: data},
	}
}
