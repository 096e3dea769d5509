package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mkondo/driveman/internal/auth"
	"github.com/mkondo/driveman/internal/session"
	"github.com/sirupsen/logrus"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// AuthHandler handles the sign-in/sign-out endpoints.
type AuthHandler struct {
	session     *auth.Session
	controller  *session.Controller
	jwtSecret   string
	frontendURL string
	devMode     bool
	log         *logrus.Entry
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(s *auth.Session, c *session.Controller, jwtSecret, frontendURL string, devMode bool, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		session:     s,
		controller:  c,
		jwtSecret:   jwtSecret,
		frontendURL: frontendURL,
		devMode:     devMode,
		log:         logger.WithField("component", "handler.auth"),
	}
}

func (h *AuthHandler) sameSite() string {
	if h.devMode {
		return "Lax"
	}
	return "None"
}

// Login redirects to the Google consent prompt with a fresh CSRF state,
// round-tripped through a short-lived cookie.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()
	stateCookie := fmt.Sprintf("oauth_state=%s; HttpOnly; Path=/; Max-Age=600; SameSite=%s; Secure", state, h.sameSite())

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.session.InteractiveURL(state),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {stateCookie},
		},
	}, nil
}

// Callback completes the interactive sign-in: state check, code exchange,
// then a session cookie for the browser. An exchange error is logged and the
// user is sent back with the signed-in flag unchanged.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := req.QueryStringParameters["state"]
	expected := ""
	for k, v := range req.Headers {
		if strings.EqualFold(k, "Cookie") {
			expected = cookieValue(v, "oauth_state")
		}
	}
	if state == "" || state != expected {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid state"}, nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Missing code"}, nil
	}

	if err := h.session.HandleCallback(ctx, code); err != nil {
		// Informational only (e.g. the user dismissed the consent prompt).
		h.log.WithError(err).Info("code exchange failed")
		return h.redirect(fmt.Sprintf("%s/?error=auth", h.frontendURL), nil), nil
	}

	subject, err := h.lookupSubject(ctx)
	if err != nil {
		h.log.WithError(err).Warn("userinfo lookup failed")
		subject = "user"
	}

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.jwtSecret))
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to sign token"}, nil
	}

	sessionCookie := fmt.Sprintf("session_token=%s; HttpOnly; Path=/; Max-Age=86400; SameSite=%s; Secure", signedToken, h.sameSite())
	clearState := fmt.Sprintf("oauth_state=; HttpOnly; Path=/; Max-Age=0; SameSite=%s; Secure", h.sameSite())
	return h.redirect(fmt.Sprintf("%s/?success=true", h.frontendURL), []string{sessionCookie, clearState}), nil
}

// lookupSubject resolves the signed-in Google subject ID for the JWT claims.
func (h *AuthHandler) lookupSubject(ctx context.Context) (string, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(h.session))
	if err != nil {
		return "", fmt.Errorf("create userinfo service: %w", err)
	}
	userinfo, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get userinfo: %w", err)
	}
	return userinfo.Id, nil
}

func (h *AuthHandler) redirect(location string, cookies []string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

// Logout signs the session out and clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	h.controller.SignOut(ctx)

	cookie := fmt.Sprintf("session_token=; HttpOnly; Path=/; Max-Age=0; SameSite=%s; Secure", h.sameSite())
	resp := jsonResponse(http.StatusOK, `{"success":true}`)
	resp.MultiValueHeaders = map[string][]string{"Set-Cookie": {cookie}}
	return resp, nil
}

// Session publishes the controller status (state + signed-in flag).
func (h *AuthHandler) Session(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(h.controller.Status())
	return jsonResponse(http.StatusOK, string(body)), nil
}
