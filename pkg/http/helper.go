package http

import (
	"net/http"
	apperrors "prayerroom/pkg/errors"
	"prayerroom/pkg/slot"
)

// ExtractDate reads the required ?date=YYYY-MM-DD query parameter.
func ExtractDate(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return "", apperrors.InvalidInput("query parameter 'date' is required")
	}
	if !slot.ValidDate(date) {
		return "", apperrors.InvalidInput("invalid date parameter, must be YYYY-MM-DD: " + date)
	}
	return date, nil
}

// ExtractResourceID reads ?resource_id, falling back to the venue default.
func ExtractResourceID(r *http.Request, fallback string) string {
	if id := r.URL.Query().Get("resource_id"); id != "" {
		return id
	}
	return fallback
}
