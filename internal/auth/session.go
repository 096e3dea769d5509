// Package auth wraps the Google OAuth2 flow behind a single-user session:
// interactive consent, silent refresh-token sign-in, and revocation.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mkondo/driveman/internal/tokenstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

var errNotSignedIn = errors.New("not signed in")

// TokenCallback receives every freshly acquired token. Exactly one callback
// is registered, by the session controller, at initialization.
type TokenCallback func(token *oauth2.Token)

// Session owns the in-memory bearer token and the OAuth client configuration.
// It is passed by reference to every component that needs the token; there
// are no ambient globals.
type Session struct {
	config     *oauth2.Config
	store      tokenstore.Store
	log        *logrus.Entry
	revokeURL  string
	httpClient *http.Client

	mu      sync.RWMutex
	token   *oauth2.Token
	onToken TokenCallback
}

// NewSession creates a Session. The store is only read, for the refresh token
// backing silent sign-in; persistence of acquired tokens is the token
// callback's responsibility.
func NewSession(config *oauth2.Config, store tokenstore.Store, logger *logrus.Logger) *Session {
	return &Session{
		config:     config,
		store:      store,
		log:        logger.WithField("component", "auth"),
		revokeURL:  defaultRevokeURL,
		httpClient: http.DefaultClient,
	}
}

// SetRevokeEndpoint overrides the revocation client and URL, for tests.
func (s *Session) SetRevokeEndpoint(client *http.Client, u string) {
	s.httpClient = client
	s.revokeURL = u
}

// RegisterTokenCallback subscribes the single token-acquired listener.
func (s *Session) RegisterTokenCallback(fn TokenCallback) {
	s.mu.Lock()
	s.onToken = fn
	s.mu.Unlock()
}

// InteractiveURL returns the consent-prompt URL for the given CSRF state.
func (s *Session) InteractiveURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code delivered to the redirect
// endpoint. On success the token is installed and the registered callback
// invoked; the caller decides what to do with an exchange error.
func (s *Session) HandleCallback(ctx context.Context, code string) error {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return err
	}
	s.install(token)
	s.notify(token)
	return nil
}

// SignInSilent attempts a token grant with no user-facing prompt, using the
// stored refresh token. Best-effort: any failure is logged and the callback
// is simply not invoked.
func (s *Session) SignInSilent(ctx context.Context) {
	refreshToken, err := s.store.RefreshToken(ctx)
	if err != nil {
		s.log.WithError(err).Debug("silent sign-in: no usable refresh token")
		return
	}

	token, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.log.WithError(err).Info("silent sign-in failed")
		return
	}
	s.install(token)
	s.notify(token)
}

// SignOut revokes the current token with the provider (best-effort) and
// clears the in-memory reference. No-op when no token is held.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.token = nil
	s.mu.Unlock()

	if token == nil {
		return
	}
	if err := s.revoke(ctx, token.AccessToken); err != nil {
		s.log.WithError(err).Warn("token revocation failed")
	}
}

// Install sets the in-memory token without invoking the callback, used when
// restoring a session from a cached credential.
func (s *Session) Install(token *oauth2.Token) {
	s.install(token)
}

// CurrentToken returns the in-memory token, if any.
func (s *Session) CurrentToken() (*oauth2.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, false
	}
	return s.token, true
}

// Token implements oauth2.TokenSource, so an authenticated *http.Client can
// be built over the session's current token.
func (s *Session) Token() (*oauth2.Token, error) {
	token, ok := s.CurrentToken()
	if !ok {
		return nil, errNotSignedIn
	}
	return token, nil
}

func (s *Session) install(token *oauth2.Token) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) notify(token *oauth2.Token) {
	s.mu.RLock()
	fn := s.onToken
	s.mu.RUnlock()
	if fn != nil {
		fn(token)
	}
}

func (s *Session) revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("revoke endpoint returned " + resp.Status)
	}
	return nil
}
