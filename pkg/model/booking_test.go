package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooking_Holder(t *testing.T) {
	individual := &Booking{Name: "Alice", Email: "a@x.com"}
	assert.Equal(t, "Alice", individual.HolderName())
	assert.Equal(t, "a@x.com", individual.HolderEmail())
	assert.Equal(t, "Prayer room booking", individual.Label())

	class := &Booking{IsClass: true, ClassName: "Quran study", HostName: "Omar", HostEmail: "o@x.com", Name: "ignored"}
	assert.Equal(t, "Omar", class.HolderName())
	assert.Equal(t, "o@x.com", class.HolderEmail())
	assert.Equal(t, "Quran study", class.Label())
}

func TestBooking_IsActive(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPending:   true,
		StatusConfirmed: true,
		StatusConflict:  false,
		StatusError:     false,
		StatusCancelled: false,
	} {
		b := &Booking{Status: status}
		assert.Equal(t, want, b.IsActive(), status)
	}
}

func TestBooking_CloneIsDeep(t *testing.T) {
	b := &Booking{
		Participants: []string{"Omar"},
		Credential:   &Credential{CredentialID: "c1", AccessCode: "1234"},
	}
	c := b.Clone()
	c.Participants[0] = "changed"
	c.Credential.AccessCode = "0000"

	assert.Equal(t, "Omar", b.Participants[0])
	assert.Equal(t, "1234", b.Credential.AccessCode)
	assert.Nil(t, (*Booking)(nil).Clone())
}

func TestBooking_SameSlot(t *testing.T) {
	a := &Booking{ResourceID: "prayer_room", Date: "2026-01-16", Time: "14:00"}
	b := a.Clone()
	assert.True(t, a.SameSlot(b))
	b.Time = "15:00"
	assert.False(t, a.SameSlot(b))
	assert.False(t, a.SameSlot(nil))
}

func TestBookingPatch_Apply(t *testing.T) {
	b := &Booking{
		Date:       "2026-01-16",
		Time:       "14:00",
		Status:     StatusConfirmed,
		Credential: &Credential{CredentialID: "c1"},
	}

	newTime := "15:00"
	cred := Credential{CredentialID: "c2", AccessCode: "4321", IssuedAt: time.Now()}
	p := &BookingPatch{Time: &newTime, Credential: &cred}
	require.False(t, p.IsEmpty())
	p.Apply(b)

	assert.Equal(t, "15:00", b.Time)
	assert.Equal(t, "2026-01-16", b.Date)
	assert.Equal(t, "c2", b.Credential.CredentialID)

	(&BookingPatch{ClearCredential: true}).Apply(b)
	assert.Nil(t, b.Credential)
}

func TestStatusPatch(t *testing.T) {
	b := &Booking{Status: StatusPending}
	StatusPatch(StatusConflict, "Time slot is no longer available").Apply(b)
	assert.Equal(t, StatusConflict, b.Status)
	assert.Equal(t, "Time slot is no longer available", b.Error)

	StatusPatch(StatusConfirmed, "").Apply(b)
	assert.Empty(t, b.Error)
}

func TestBookingUpdate_Patch(t *testing.T) {
	limit := 5
	u := &BookingUpdate{Time: "15:00", MaxParticipants: &limit}
	assert.True(t, u.Reschedules())

	p := u.Patch()
	require.NotNil(t, p.Time)
	assert.Equal(t, "15:00", *p.Time)
	assert.Nil(t, p.Date)
	assert.Equal(t, 5, *p.MaxParticipants)

	assert.True(t, (&BookingUpdate{}).Patch().IsEmpty())
	assert.False(t, (&BookingUpdate{Name: "Bob"}).Reschedules())
}
