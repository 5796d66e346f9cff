// Package authorizer implements the API Gateway token authorizer guarding
// the import endpoint. Tokens are HTTP Basic credentials checked against a
// static allow-list.
package authorizer

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// ErrUnauthorized fails the invocation for malformed tokens. API Gateway
// answers such failures with 401.
var ErrUnauthorized = errors.New("Unauthorized")

// PrincipalID is the fixed principal reported for every decision.
const PrincipalID = "lambda-authorizer-principal-id"

const (
	basicScheme  = "Basic "
	invokeAction = "execute-api:Invoke"
)

// Credentials maps user names to passwords.
type Credentials map[string]string

// ParseCredentials reads newline separated user=password pairs. Blank
// lines are skipped and the password is everything after the first '='.
// Lines without '=' are ignored.
func ParseCredentials(text string) Credentials {
	creds := make(Credentials)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		user, pass, ok := strings.Cut(line, "=")
		if !ok || user == "" {
			continue
		}
		creds[user] = pass
	}
	return creds
}

// Valid reports whether user and pass match an entry exactly.
func (c Credentials) Valid(user, pass string) bool {
	want, ok := c[user]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(pass)) == 1
}

// DecodeToken extracts the user and password from a Basic token.
func DecodeToken(token string) (user, pass string, err error) {
	if !strings.HasPrefix(token, basicScheme) {
		return "", "", ErrUnauthorized
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, basicScheme))
	if err != nil {
		return "", "", ErrUnauthorized
	}
	user, pass, _ = strings.Cut(string(raw), ":")
	if user == "" || pass == "" {
		return "", "", ErrUnauthorized
	}
	return user, pass, nil
}

// Authorizer decides access for token authorizer requests.
type Authorizer struct {
	creds Credentials
	log   zerolog.Logger
}

// New creates an Authorizer over creds.
func New(creds Credentials, logger zerolog.Logger) *Authorizer {
	return &Authorizer{creds: creds, log: logger}
}

// Authorize returns an Allow policy for the requested method when the token
// carries known credentials and a Deny policy otherwise. Malformed tokens
// return ErrUnauthorized.
func (a *Authorizer) Authorize(ctx context.Context, req events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	user, pass, err := DecodeToken(req.AuthorizationToken)
	if err != nil {
		a.log.Info().Str("methodArn", req.MethodArn).Msg("malformed authorization token")
		return events.APIGatewayCustomAuthorizerResponse{}, err
	}

	allowed := a.creds.Valid(user, pass)
	a.log.Info().Str("user", user).Bool("allowed", allowed).Str("methodArn", req.MethodArn).Msg("authorization decided")

	resp := Policy(req.MethodArn, allowed)
	if allowed {
		resp.Context = map[string]interface{}{"username": user}
	}
	return resp, nil
}

// Policy builds the decision document for methodArn.
func Policy(methodArn string, allow bool) events.APIGatewayCustomAuthorizerResponse {
	effect := "Deny"
	if allow {
		effect = "Allow"
	}
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: PrincipalID,
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{{
				Action:   []string{invokeAction},
				Effect:   effect,
				Resource: []string{methodArn},
			}},
		},
	}
}
