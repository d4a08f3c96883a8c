package credentials

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"prayerroom/internal/metrics"
	"prayerroom/pkg/client"
	"prayerroom/pkg/logger"
	"regexp"
	"time"
)

const credentialTypeTimeBounded = "time_bounded"

var accessCodeRegex = regexp.MustCompile(`^[0-9]{4}$`)

type createRequest struct {
	LockID    string      `json:"lockId"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	User      requestUser `json:"user"`
	Type      string      `json:"type"`
}

type requestUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createResponse struct {
	ID         string `json:"id"`
	AccessCode string `json:"accessCode"`
}

type updateRequest struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// HTTPGateway is the Gateway backed by the access-control REST API.
type HTTPGateway struct {
	cfg    Config
	client *client.HttpClient
	log    *logger.Logger
}

func NewHTTPGateway(cfg Config, log *logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: client.NewHttpClient(cfg.BaseURL, cfg.Timeout).WithBearer(cfg.APIKey),
		log:    log,
	}
}

func (g *HTTPGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func (g *HTTPGateway) CreateCredential(ctx context.Context, resourceID string, start, end time.Time, holderName, holderEmail string) (cred *Credential, err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayCall("create", started, err) }()

	lockID, err := g.cfg.LockID(resourceID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.POST(ctx, "/credentials", createRequest{
		LockID:    lockID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		User:      requestUser{Name: holderName, Email: holderEmail},
		Type:      credentialTypeTimeBounded,
	})
	if err != nil {
		return nil, transportError("create", err)
	}
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Operation: "create", Status: resp.StatusCode, Message: client.ErrorMessage(resp)}
	}

	var body createResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, &UpstreamError{Operation: "create", Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if body.ID == "" {
		return nil, &UpstreamError{Operation: "create", Status: resp.StatusCode, Message: "response carried no credential id"}
	}
	if !accessCodeRegex.MatchString(body.AccessCode) {
		// The lock holds a credential nobody can be told about.
		if err := g.RevokeCredential(ctx, body.ID); err != nil {
			g.log.Error("Failed to revoke credential with malformed access code", "credential_id", body.ID, "error", err)
		}
		return nil, &UpstreamError{Operation: "create", Status: resp.StatusCode, Message: "malformed access code"}
	}

	g.log.Info("Credential issued",
		"credential_id", body.ID,
		"resource_id", resourceID,
		"lock_id", lockID,
		"start_time", start,
	)
	return &Credential{ID: body.ID, AccessCode: body.AccessCode}, nil
}

func (g *HTTPGateway) RevokeCredential(ctx context.Context, credentialID string) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayCall("revoke", started, err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.DELETE(ctx, "/credentials/"+url.PathEscape(credentialID))
	if err != nil {
		return transportError("revoke", err)
	}

	switch {
	case resp.IsSuccess():
		g.log.Info("Credential revoked", "credential_id", credentialID)
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		g.log.Info("Credential already revoked", "credential_id", credentialID, "status", resp.StatusCode)
		return nil
	default:
		return &UpstreamError{Operation: "revoke", Status: resp.StatusCode, Message: client.ErrorMessage(resp)}
	}
}

func (g *HTTPGateway) UpdateCredential(ctx context.Context, credentialID string, start, end time.Time) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayCall("update", started, err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.PATCH(ctx, "/credentials/"+url.PathEscape(credentialID), updateRequest{
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
	})
	if err != nil {
		return transportError("update", err)
	}
	if !resp.IsSuccess() {
		return &UpstreamError{Operation: "update", Status: resp.StatusCode, Message: client.ErrorMessage(resp)}
	}
	return nil
}

func transportError(operation string, err error) *UpstreamError {
	message := "request failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		message = "request timed out"
	}
	return &UpstreamError{Operation: operation, Message: message, Err: err}
}
