// Package secret resolves the deployment secrets by parameter name, from SSM
// Parameter Store when deployed or from environment variables in local runs.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParamName is an SSM parameter path naming one deployment secret.
type ParamName string

// The secrets this service needs at startup.
const (
	ParamGoogleClientSecret ParamName = "/driveman/google-client-secret"
	ParamJWTSecret          ParamName = "/driveman/jwt-secret"
	ParamAPIGatewaySecret   ParamName = "/driveman/api-gateway-secret"
)

// envVar derives the local-mode variable name from the parameter path:
// the last path segment, uppercased, hyphens to underscores.
// ParamJWTSecret -> "JWT_SECRET".
func (p ParamName) envVar() string {
	segments := strings.Split(string(p), "/")
	last := segments[len(segments)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// Resolver retrieves one secret value per parameter.
type Resolver interface {
	GetSecret(ctx context.Context, param ParamName) (string, error)
}

// EnvResolver reads secrets from environment variables, for local runs
// without AWS access.
type EnvResolver struct{}

func NewEnvResolver() Resolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, param ParamName) (string, error) {
	name := param.envVar()
	val := os.Getenv(name)
	if val == "" {
		return "", fmt.Errorf("secret %s: environment variable %s is not set", param, name)
	}
	return val, nil
}

// SSMClient is the subset of *ssm.Client used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMResolver reads SecureString parameters from SSM Parameter Store.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) Resolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, param ParamName) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(string(param)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secret %s: parameter has no value", param)
	}
	return *out.Parameter.Value, nil
}
