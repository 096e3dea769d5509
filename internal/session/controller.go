// Package session owns the sign-in lifecycle: startup sequencing, the
// signed-in flag, and sign-out.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mkondo/driveman/internal/auth"
	"github.com/mkondo/driveman/internal/model"
	"github.com/mkondo/driveman/internal/tokenstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// State is the controller lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ReadinessProbe reports whether startup dependencies are available yet.
type ReadinessProbe func(ctx context.Context) error

const (
	readyInterval = 100 * time.Millisecond
	readyAttempts = 50
)

// Status is the controller state published to the view layer.
type Status struct {
	State    string `json:"state"`
	SignedIn bool   `json:"signedIn"`
	Error    string `json:"error,omitempty"`
}

// Controller sequences startup and is the single owner of the signed-in flag.
type Controller struct {
	auth  *auth.Session
	store tokenstore.Store
	probe ReadinessProbe
	clock clockwork.Clock
	log   *logrus.Entry

	mu       sync.RWMutex
	state    State
	errMsg   string
	signedIn bool
}

// NewController creates a Controller in the Loading state.
func NewController(authSession *auth.Session, store tokenstore.Store, probe ReadinessProbe, clock clockwork.Clock, logger *logrus.Logger) *Controller {
	return &Controller{
		auth:  authSession,
		store: store,
		probe: probe,
		clock: clock,
		log:   logger.WithField("component", "session"),
		state: StateLoading,
	}
}

// Start runs the startup sequence: bounded readiness wait, token-callback
// registration, then session restoration, either directly from a valid cached
// credential or by a fire-and-forget silent sign-in. Any failure here is
// terminal until the process restarts.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.waitReady(ctx); err != nil {
		c.fail(err)
		return err
	}

	c.auth.RegisterTokenCallback(c.onTokenAcquired)

	cred, err := c.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("read cached credential: %w", err)
		c.fail(err)
		return err
	}

	if cred != nil {
		// Valid cached credential: restore without a network round-trip.
		c.auth.Install(&oauth2.Token{
			AccessToken: cred.AccessToken,
			TokenType:   "Bearer",
			Expiry:      time.UnixMilli(cred.ExpiresAt),
		})
		c.setSignedIn(true)
		c.log.Info("session restored from cached credential")
	} else {
		go c.auth.SignInSilent(ctx)
	}

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// waitReady polls the probe at a fixed interval with a fixed attempt cap.
func (c *Controller) waitReady(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < readyAttempts; attempt++ {
		if lastErr = c.probe(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(readyInterval):
		}
	}
	return fmt.Errorf("dependencies unavailable after %d attempts: %w", readyAttempts, lastErr)
}

// onTokenAcquired is the single registered token callback: it persists the
// credential and flips the signed-in flag.
func (c *Controller) onTokenAcquired(token *oauth2.Token) {
	cred := model.Credential{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry.UnixMilli(),
	}
	if err := c.store.Save(context.Background(), cred, token.RefreshToken); err != nil {
		// The session still works in memory; only restoration is affected.
		c.log.WithError(err).Warn("failed to persist credential")
	}
	c.setSignedIn(true)
}

// SignOut clears the execution-context token, clears the token store, and
// flips the signed-in flag. Revocation inside auth.SignOut is best-effort.
func (c *Controller) SignOut(ctx context.Context) {
	c.auth.SignOut(ctx)
	if err := c.store.Clear(ctx); err != nil {
		c.log.WithError(err).Warn("failed to clear stored credential")
	}
	c.setSignedIn(false)
}

// SignedIn reports the current signed-in flag.
func (c *Controller) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signedIn
}

// Status returns the published lifecycle state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{State: c.state.String(), SignedIn: c.signedIn, Error: c.errMsg}
}

func (c *Controller) setSignedIn(v bool) {
	c.mu.Lock()
	c.signedIn = v
	c.mu.Unlock()
}

func (c *Controller) fail(err error) {
	c.log.WithError(err).Error("session initialization failed")
	c.mu.Lock()
	c.state = StateError
	c.errMsg = err.Error()
	c.mu.Unlock()
}
