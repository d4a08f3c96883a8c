package model

type SlotAvailability struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Status    string `json:"status,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	IsClass   bool   `json:"is_class,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Spots     int    `json:"spots_left,omitempty"`
}

type DayAvailability struct {
	ResourceID string             `json:"resource_id"`
	Date       string             `json:"date"`
	Slots      []SlotAvailability `json:"slots"`
	Stale      bool               `json:"stale,omitempty"`
}
