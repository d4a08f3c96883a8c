package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"prayerroom/internal/bookings/events"
	httputil "prayerroom/pkg/http"

	"github.com/julienschmidt/httprouter"
)

const (
	streamBuffer      = 32
	heartbeatInterval = 15 * time.Second
)

// Stream sends the day's bookings as a "snapshot" event followed by one
// server-sent event per change until the client disconnects. A client that
// falls behind by more than the buffer is disconnected and must reconnect.
func (h *BookingHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	date, err := httputil.ExtractDate(r)
	if err != nil {
		h.writeError(w, "Stream", err)
		return
	}
	resourceID := httputil.ExtractResourceID(r, h.defaultResourceID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, "Stream", fmt.Errorf("response writer does not support streaming"))
		return
	}

	changes := make(chan events.ChangeEvent, streamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	unsubscribe := h.service.Subscribe(events.Filter{ResourceID: resourceID, Date: date}, func(e events.ChangeEvent) {
		select {
		case changes <- e:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	bookings, stale, err := h.service.List(r.Context(), resourceID, date)
	if err != nil {
		h.writeError(w, "Stream", err)
		return
	}

	// The server's write timeout would cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := httputil.ListResponse{Data: bookings, TotalCount: int64(len(bookings)), Stale: stale}
	if err := writeEvent(w, "", "snapshot", snapshot); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-overflow:
			h.log.Warn("Closing slow event stream", "resource_id", resourceID, "date", date)
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-changes:
			if err := writeEvent(w, e.ID, string(e.Type), e); err != nil {
				h.log.Debug("Event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
