package model

import (
	"prayerroom/pkg/slot"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusConflict  = "conflict"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

type Booking struct {
	ID               string      `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ResourceID       string      `json:"resource_id" bson:"resource_id" validate:"required,min=1,max=64"`
	Date             string      `json:"date" bson:"date" validate:"required,slot_date"`
	Time             string      `json:"time" bson:"time" validate:"required,slot_time"`
	DurationMinutes  int         `json:"duration_minutes" bson:"duration_minutes" validate:"required,min=1,max=480"`
	Status           string      `json:"status" bson:"status" validate:"required,oneof=pending confirmed"`
	IsClass          bool        `json:"is_class" bson:"is_class"`
	Name             string      `json:"name,omitempty" bson:"name,omitempty" validate:"omitempty,max=100"`
	Email            string      `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Phone            string      `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,e164"`
	ClassName        string      `json:"class_name,omitempty" bson:"class_name,omitempty" validate:"omitempty,max=100"`
	HostName         string      `json:"host_name,omitempty" bson:"host_name,omitempty" validate:"omitempty,max=100"`
	HostEmail        string      `json:"host_email,omitempty" bson:"host_email,omitempty" validate:"omitempty,email"`
	MaxParticipants  int         `json:"max_participants,omitempty" bson:"max_participants,omitempty" validate:"omitempty,min=1,max=200"`
	Participants     []string    `json:"participants,omitempty" bson:"participants,omitempty" validate:"omitempty,max=200,dive,required,max=100"`
	ParticipantCount int         `json:"participant_count,omitempty" bson:"participant_count,omitempty"`
	Credential       *Credential `json:"credential,omitempty" bson:"credential,omitempty"`
	Error            string      `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" bson:"updated_at"`
}

// Credential is the door code issued by the access-control system. The
// access code is only ever copied from the gateway response.
type Credential struct {
	CredentialID string    `json:"credential_id" bson:"credential_id"`
	AccessCode   string    `json:"access_code" bson:"access_code"`
	IssuedAt     time.Time `json:"issued_at" bson:"issued_at"`
}

// IsActive reports whether the booking may occupy its slot.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

func (b *Booking) SlotKey() string {
	return slot.Key(b.ResourceID, b.Date, b.Time)
}

// SameSlot reports whether both bookings point at the same resource, date and time.
func (b *Booking) SameSlot(other *Booking) bool {
	return other != nil && b.SlotKey() == other.SlotKey()
}

// HolderName is the person the credential and notices are addressed to.
func (b *Booking) HolderName() string {
	if b.IsClass {
		return b.HostName
	}
	return b.Name
}

func (b *Booking) HolderEmail() string {
	if b.IsClass {
		return b.HostEmail
	}
	return b.Email
}

// Label names the booking in notices.
func (b *Booking) Label() string {
	if b.IsClass && b.ClassName != "" {
		return b.ClassName
	}
	return "Prayer room booking"
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.Participants != nil {
		c.Participants = append([]string(nil), b.Participants...)
	}
	if b.Credential != nil {
		cred := *b.Credential
		c.Credential = &cred
	}
	return &c
}

// BookingUpdate is the user-editable subset accepted by PATCH.
type BookingUpdate struct {
	Date            string `json:"date,omitempty" validate:"omitempty,slot_date"`
	Time            string `json:"time,omitempty" validate:"omitempty,slot_time"`
	Status          string `json:"status,omitempty" validate:"omitempty,oneof=cancelled"`
	Name            string `json:"name,omitempty" validate:"omitempty,max=100"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,e164"`
	ClassName       string `json:"class_name,omitempty" validate:"omitempty,max=100"`
	MaxParticipants *int   `json:"max_participants,omitempty" validate:"omitempty,min=1,max=200"`
}

func (u *BookingUpdate) Reschedules() bool {
	return u.Date != "" || u.Time != ""
}

// Edits reports whether the update changes any field besides status.
func (u *BookingUpdate) Edits() bool {
	return u.Reschedules() || u.Name != "" || u.Email != "" || u.Phone != "" ||
		u.ClassName != "" || u.MaxParticipants != nil
}

// Patch converts the update into a store patch.
func (u *BookingUpdate) Patch() *BookingPatch {
	p := &BookingPatch{}
	if u.Date != "" {
		p.Date = &u.Date
	}
	if u.Time != "" {
		p.Time = &u.Time
	}
	if u.Status != "" {
		p.Status = &u.Status
	}
	if u.Name != "" {
		p.Name = &u.Name
	}
	if u.Email != "" {
		p.Email = &u.Email
	}
	if u.Phone != "" {
		p.Phone = &u.Phone
	}
	if u.ClassName != "" {
		p.ClassName = &u.ClassName
	}
	if u.MaxParticipants != nil {
		p.MaxParticipants = u.MaxParticipants
	}
	return p
}

// BookingPatch is a partial write. Nil fields are left untouched.
type BookingPatch struct {
	Date            *string
	Time            *string
	Status          *string
	Name            *string
	Email           *string
	Phone           *string
	ClassName       *string
	MaxParticipants *int
	Error           *string
	Credential      *Credential

	// ClearCredential unsets the credential. It wins over Credential.
	ClearCredential bool

	// ExpectStatus makes the write conditional on the stored status.
	ExpectStatus string
}

func (p *BookingPatch) IsEmpty() bool {
	return p.Date == nil && p.Time == nil && p.Status == nil && p.Name == nil &&
		p.Email == nil && p.Phone == nil && p.ClassName == nil && p.MaxParticipants == nil &&
		p.Error == nil && p.Credential == nil && !p.ClearCredential
}

// Apply mutates b in place, mirroring what the store writes.
func (p *BookingPatch) Apply(b *Booking) {
	if p.Date != nil {
		b.Date = *p.Date
	}
	if p.Time != nil {
		b.Time = *p.Time
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Email != nil {
		b.Email = *p.Email
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.ClassName != nil {
		b.ClassName = *p.ClassName
	}
	if p.MaxParticipants != nil {
		b.MaxParticipants = *p.MaxParticipants
	}
	if p.Error != nil {
		b.Error = *p.Error
	}
	if p.Credential != nil {
		cred := *p.Credential
		b.Credential = &cred
	}
	if p.ClearCredential {
		b.Credential = nil
	}
}

// StatusPatch sets a terminal status with its message. An empty message
// clears any previous error.
func StatusPatch(status, message string) *BookingPatch {
	return &BookingPatch{Status: &status, Error: &message}
}
