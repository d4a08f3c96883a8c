package notifications

import (
	"context"
	"errors"
	"testing"

	"prayerroom/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmed() *model.Booking {
	return &model.Booking{
		ID:         "65a000000000000000000001",
		ResourceID: "prayer_room",
		Date:       "2026-01-16",
		Time:       "14:00",
		Status:     model.StatusConfirmed,
		Name:       "Alice",
		Email:      "a@x.com",
		Credential: &model.Credential{CredentialID: "cred-1", AccessCode: "4821"},
	}
}

func TestConfirmation(t *testing.T) {
	n := Confirmation(confirmed())

	assert.Equal(t, "a@x.com", n.To)
	assert.Equal(t, TemplateConfirmation, n.Template.Name)
	assert.Equal(t, TemplateData{
		Name:       "Alice",
		Date:       "Friday, January 16, 2026",
		Time:       "2:00 PM",
		AccessCode: "4821",
		Label:      "Prayer room booking",
		BookingID:  "65a000000000000000000001",
	}, n.Template.Data)
}

func TestCancellationOmitsCode(t *testing.T) {
	n := Cancellation(confirmed())
	assert.Equal(t, TemplateCancellation, n.Template.Name)
	assert.Empty(t, n.Template.Data.AccessCode)
}

func TestUpdateForClassGoesToHost(t *testing.T) {
	b := confirmed()
	b.IsClass = true
	b.ClassName = "Tajweed"
	b.HostName = "Omar"
	b.HostEmail = "o@x.com"
	b.Time = "15:00"

	n := Update(b)
	assert.Equal(t, "o@x.com", n.To)
	assert.Equal(t, "Omar", n.Template.Data.Name)
	assert.Equal(t, "Tajweed", n.Template.Data.Label)
	assert.Equal(t, "3:00 PM", n.Template.Data.Time)
	assert.Equal(t, "4821", n.Template.Data.AccessCode)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, Confirmation(confirmed())))
	require.NoError(t, q.Enqueue(ctx, Cancellation(confirmed())))

	items := q.Items()
	require.Len(t, items, 2)
	assert.False(t, items[0].CreatedAt.IsZero())
	assert.Len(t, q.ByTemplate(TemplateCancellation), 1)

	assert.ErrorIs(t, q.Enqueue(ctx, Notification{}), ErrNoRecipient)

	boom := errors.New("mail store down")
	q.FailWith(boom)
	assert.ErrorIs(t, q.Enqueue(ctx, Confirmation(confirmed())), boom)
}
