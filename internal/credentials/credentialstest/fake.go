// Package credentialstest provides an in-memory credentials.Gateway that
// records every call.
package credentialstest

import (
	"context"
	"fmt"
	"prayerroom/internal/credentials"
	"sync"
	"time"
)

type CreateCall struct {
	ResourceID  string
	Start       time.Time
	End         time.Time
	HolderName  string
	HolderEmail string
}

type Gateway struct {
	mu      sync.Mutex
	seq     int
	active  map[string]bool
	Creates []CreateCall
	Revokes []string
	Updates []string

	// CreateErr and RevokeErr, when set, are returned instead of succeeding.
	CreateErr error
	RevokeErr error
}

func NewGateway() *Gateway {
	return &Gateway{active: make(map[string]bool)}
}

func (g *Gateway) CreateCredential(_ context.Context, resourceID string, start, end time.Time, holderName, holderEmail string) (*credentials.Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Creates = append(g.Creates, CreateCall{
		ResourceID:  resourceID,
		Start:       start,
		End:         end,
		HolderName:  holderName,
		HolderEmail: holderEmail,
	})
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}

	g.seq++
	id := fmt.Sprintf("cred-%d", g.seq)
	g.active[id] = true
	return &credentials.Credential{ID: id, AccessCode: fmt.Sprintf("%04d", 1000+g.seq)}, nil
}

func (g *Gateway) RevokeCredential(_ context.Context, credentialID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Revokes = append(g.Revokes, credentialID)
	if g.RevokeErr != nil {
		return g.RevokeErr
	}
	delete(g.active, credentialID)
	return nil
}

func (g *Gateway) UpdateCredential(_ context.Context, credentialID string, _, _ time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Updates = append(g.Updates, credentialID)
	return nil
}

func (g *Gateway) CreateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Creates)
}

func (g *Gateway) RevokeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Revokes)
}

func (g *Gateway) LastCreate() CreateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Creates) == 0 {
		return CreateCall{}
	}
	return g.Creates[len(g.Creates)-1]
}

func (g *Gateway) RevokedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Revokes...)
}

// Active lists credentials issued and not yet revoked.
func (g *Gateway) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func (g *Gateway) SetCreateErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateErr = err
}

func (g *Gateway) SetRevokeErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RevokeErr = err
}
