package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prayerroom/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2026, 1, 16, 19, 0, 0, 0, time.UTC)
	end   = start.Add(time.Hour)
)

func newGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewHTTPGateway(Config{
		BaseURL: srv.URL,
		APIKey:  "secret",
		LockMap: map[string]string{"prayer_room": "lock-42"},
		Timeout: time.Second,
	}, logger.Discard())
}

func TestCreateCredential(t *testing.T) {
	var got createRequest
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/credentials", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cred-1","accessCode":"4821","extra":true}`))
	})

	cred, err := gw.CreateCredential(context.Background(), "prayer_room", start, end, "Alice", "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, "cred-1", cred.ID)
	assert.Regexp(t, `^[0-9]{4}$`, cred.AccessCode)
	assert.Equal(t, "lock-42", got.LockID)
	assert.Equal(t, "time_bounded", got.Type)
	assert.Equal(t, "Alice", got.User.Name)
	assert.Equal(t, "a@x.com", got.User.Email)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
}

func TestCreateCredential_UnmappedResource(t *testing.T) {
	called := false
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := gw.CreateCredential(context.Background(), "gym", start, end, "Alice", "a@x.com")
	assert.ErrorIs(t, err, ErrUnmappedResource)
	assert.False(t, called)
}

func TestCreateCredential_UpstreamFailure(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"lock offline"}`))
	})

	_, err := gw.CreateCredential(context.Background(), "prayer_room", start, end, "Alice", "a@x.com")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.Status)
	assert.Equal(t, "lock offline", upstream.Message)
}

func TestCreateCredential_MissingID(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessCode":"1234"}`))
	})

	_, err := gw.CreateCredential(context.Background(), "prayer_room", start, end, "Alice", "a@x.com")
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestCreateCredential_MalformedAccessCode(t *testing.T) {
	for _, code := range []string{"", "12a4", "12345", " 123"} {
		t.Run(code, func(t *testing.T) {
			var revoked []string
			gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodDelete {
					revoked = append(revoked, r.URL.Path[len("/credentials/"):])
					w.WriteHeader(http.StatusNoContent)
					return
				}
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "cred-9", "accessCode": code})
			})

			cred, err := gw.CreateCredential(context.Background(), "prayer_room", start, end, "Alice", "a@x.com")
			assert.Nil(t, cred)

			var upstream *UpstreamError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, "create", upstream.Operation)
			assert.Equal(t, "malformed access code", upstream.Message)
			assert.Equal(t, []string{"cred-9"}, revoked)
		})
	}
}

func TestCreateCredential_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	gw := NewHTTPGateway(Config{
		BaseURL: srv.URL,
		LockMap: map[string]string{"prayer_room": "lock-42"},
		Timeout: 50 * time.Millisecond,
	}, logger.Discard())

	_, err := gw.CreateCredential(context.Background(), "prayer_room", start, end, "Alice", "a@x.com")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 0, upstream.Status)
	assert.Equal(t, "request timed out", upstream.Message)
}

func TestRevokeCredential_Idempotent(t *testing.T) {
	revoked := map[string]bool{}
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		id := r.URL.Path[len("/credentials/"):]
		if revoked[id] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		revoked[id] = true
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, gw.RevokeCredential(context.Background(), "cred-1"))
	require.NoError(t, gw.RevokeCredential(context.Background(), "cred-1"))
}

func TestRevokeCredential_Gone(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	assert.NoError(t, gw.RevokeCredential(context.Background(), "cred-1"))
}

func TestRevokeCredential_Failure(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := gw.RevokeCredential(context.Background(), "cred-1")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
}

func TestUpdateCredential(t *testing.T) {
	var got updateRequest
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/credentials/cred-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, gw.UpdateCredential(context.Background(), "cred-1", start, end))
	assert.True(t, got.StartTime.Equal(start))
}

func TestConfigLockID(t *testing.T) {
	cfg := Config{LockMap: map[string]string{"prayer_room": "lock-42", "empty": ""}}

	lockID, err := cfg.LockID("prayer_room")
	require.NoError(t, err)
	assert.Equal(t, "lock-42", lockID)

	_, err = cfg.LockID("empty")
	assert.ErrorIs(t, err, ErrUnmappedResource)
}

func TestUpstreamErrorMessage(t *testing.T) {
	assert.Equal(t, "access control create failed with status 503: down",
		(&UpstreamError{Operation: "create", Status: 503, Message: "down"}).Error())
	assert.Equal(t, "access control revoke failed: request failed",
		(&UpstreamError{Operation: "revoke", Message: "request failed"}).Error())
}
