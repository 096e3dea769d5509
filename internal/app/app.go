// Package app wires the components together and routes API Gateway requests.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mkondo/driveman/internal/auth"
	"github.com/mkondo/driveman/internal/crypto"
	"github.com/mkondo/driveman/internal/handler"
	"github.com/mkondo/driveman/internal/secret"
	"github.com/mkondo/driveman/internal/session"
	"github.com/mkondo/driveman/internal/storage/googledrive"
	"github.com/mkondo/driveman/internal/tokenstore"
)

// App holds the request router and its dependencies.
type App struct {
	authHandler      *handler.AuthHandler
	fileHandler      *handler.FileHandler
	apiGatewaySecret string
	frontendURL      string
	devMode          bool
	log              *logrus.Logger
}

// NewApp initializes the application dependencies and starts the session
// controller. A failed startup leaves the controller in its terminal Error
// state; the app still serves /auth/session so the failure is visible.
func NewApp(ctx context.Context) *App {
	devMode := os.Getenv("DEV_MODE") == "true"

	logger := logrus.New()
	if devMode {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	clock := clockwork.NewRealClock()

	var resolver secret.Resolver
	var encryptor crypto.Encryptor
	var store tokenstore.Store

	if devMode {
		resolver = secret.NewEnvResolver()
		encryptor = crypto.NewMockEncryptor()

		dir := os.Getenv("TOKEN_DIR")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				panic(fmt.Sprintf("unable to resolve home dir: %v", err))
			}
			dir = filepath.Join(home, ".driveman")
		}
		fileStore, err := tokenstore.NewFileStore(dir, encryptor, clock)
		if err != nil {
			panic(fmt.Sprintf("unable to create token store: %v", err))
		}
		store = fileStore
		logger.Info("using file token store and EnvResolver (DEV_MODE=true)")
	} else {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			panic(fmt.Sprintf("unable to load SDK config, %v", err))
		}

		resolver = secret.NewSSMResolver(ssm.NewFromConfig(cfg))

		kmsKeyID := os.Getenv("KMS_KEY_ID")
		if kmsKeyID == "" {
			kmsKeyID = "alias/driveman-token-key"
		}
		encryptor = crypto.NewKMSEncryptor(kms.NewFromConfig(cfg), kmsKeyID)

		table := os.Getenv("CREDENTIALS_TABLE")
		if table == "" {
			table = "DrivemanCredentials"
		}
		store = tokenstore.NewDynamoStore(dynamodb.NewFromConfig(cfg), table, encryptor, clock)
	}

	googleClientSecret, err := resolver.GetSecret(ctx, paramOr("GOOGLE_CLIENT_SECRET_PARAM", secret.ParamGoogleClientSecret))
	if err != nil {
		logger.WithError(err).Warn("failed to resolve GOOGLE_CLIENT_SECRET")
	}

	jwtSecret, err := resolver.GetSecret(ctx, paramOr("JWT_SECRET_PARAM", secret.ParamJWTSecret))
	if err != nil {
		logger.WithError(err).Warn("failed to resolve JWT_SECRET")
		jwtSecret = "default-dev-secret"
	}

	apiGatewaySecret, err := resolver.GetSecret(ctx, paramOr("API_GATEWAY_SECRET_PARAM", secret.ParamAPIGatewaySecret))
	if err != nil {
		logger.WithError(err).Warn("failed to resolve API_GATEWAY_SECRET")
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	redirectURL := os.Getenv("GOOGLE_REDIRECT_URL")
	if redirectURL == "" {
		if devMode {
			redirectURL = "http://localhost:8080/auth/callback"
		} else {
			redirectURL = frontendURL + "/api/auth/callback"
		}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: googleClientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/drive",
			"https://www.googleapis.com/auth/drive.file",
		},
		Endpoint: google.Endpoint,
	}

	authSession := auth.NewSession(oauthConfig, store, logger)

	// The transport asks the session on every request, so sign-out and
	// re-sign-in take effect immediately. oauth2.NewClient would cache the
	// first token until its expiry.
	driveHTTPClient := &http.Client{Transport: &oauth2.Transport{Source: authSession}}

	driveClient, err := googledrive.New(ctx, driveHTTPClient, googledrive.Config{
		ParentFolderID: os.Getenv("SHARED_FOLDER_ID"),
		ShareDomains:   splitList(os.Getenv("SHARE_DOMAINS")),
		ShareEmails:    splitList(os.Getenv("SHARE_EMAILS")),
	})
	if err != nil {
		panic(fmt.Sprintf("unable to create drive client: %v", err))
	}

	controller := session.NewController(authSession, store, store.Ping, clock, logger)
	if err := controller.Start(ctx); err != nil {
		logger.WithError(err).Error("session controller failed to start; serving error state")
	}

	return &App{
		authHandler:      handler.NewAuthHandler(authSession, controller, jwtSecret, frontendURL, devMode, logger),
		fileHandler:      handler.NewFileHandler(driveClient, controller, jwtSecret, logger),
		apiGatewaySecret: apiGatewaySecret,
		frontendURL:      frontendURL,
		devMode:          devMode,
		log:              logger,
	}
}

// paramOr returns the overridden secret parameter path or the default.
func paramOr(envName string, fallback secret.ParamName) secret.ParamName {
	if v := os.Getenv(envName); v != "" {
		return secret.ParamName(v)
	}
	return fallback
}

// splitList parses a comma-separated configuration list.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	app.log.WithFields(logrus.Fields{"method": method, "path": path}).Info("request")

	// CORS preflight
	if method == "OPTIONS" {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: 204}), nil
	}

	// Only accept traffic proxied through the CDN in production.
	if !app.devMode {
		if req.Headers["X-Origin-Verify"] != app.apiGatewaySecret && req.Headers["x-origin-verify"] != app.apiGatewaySecret {
			app.log.Warn("missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Strip /api prefix if present (for CDN proxying)
	path = strings.TrimPrefix(path, "/api")

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	if strings.HasPrefix(path, "/auth") {
		if path == "/auth/login" && method == "GET" {
			return app.corsResponse(app.wrap(app.authHandler.Login(ctx, req))), nil
		}
		if path == "/auth/callback" && method == "GET" {
			return app.corsResponse(app.wrap(app.authHandler.Callback(ctx, req))), nil
		}
		if path == "/auth/logout" && method == "POST" {
			return app.corsResponse(app.wrap(app.authHandler.Logout(ctx, req))), nil
		}
		if path == "/auth/session" && method == "GET" {
			return app.corsResponse(app.wrap(app.authHandler.Session(ctx, req))), nil
		}
	}

	if strings.HasPrefix(path, "/files") {
		if path == "/files" && method == "GET" {
			return app.corsResponse(app.wrap(app.fileHandler.List(ctx, req))), nil
		}
		if path == "/files" && method == "POST" {
			return app.corsResponse(app.wrap(app.fileHandler.Create(ctx, req))), nil
		}
		if path == "/files/upload" && method == "POST" {
			return app.corsResponse(app.wrap(app.fileHandler.Upload(ctx, req))), nil
		}

		// /files/{id} and /files/{id}/download
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) >= 2 {
			if len(parts) == 3 && parts[2] == "download" && method == "GET" {
				req.PathParameters["id"] = parts[1]
				return app.corsResponse(app.wrap(app.fileHandler.Download(ctx, req))), nil
			}
			if len(parts) == 2 && method == "DELETE" {
				req.PathParameters["id"] = parts[1]
				return app.corsResponse(app.wrap(app.fileHandler.Delete(ctx, req))), nil
			}
		}
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// wrap unwraps a handler result, converting an error into a 500.
func (app *App) wrap(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.log.WithError(err).Error("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
