// Package apigw builds API Gateway proxy responses carrying the catalog's
// CORS headers.
package apigw

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
)

// NullBody is the body returned alongside not-found and server errors.
const NullBody = "null"

// CORS is the header set attached to every response of one endpoint.
type CORS struct {
	Origin  string
	Methods []string
}

// NewCORS returns the header set for origin and the endpoint's methods.
func NewCORS(origin string, methods ...string) CORS {
	return CORS{Origin: origin, Methods: methods}
}

// Headers renders the CORS response headers.
func (c CORS) Headers() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  c.Origin,
		"Access-Control-Allow-Methods": strings.Join(c.Methods, ","),
		"Access-Control-Allow-Headers": "Content-Type",
	}
}

// JSON encodes v as the response body. A value that cannot be encoded
// produces a 500 with NullBody.
func (c CORS) JSON(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return c.Text(500, NullBody)
	}
	resp := c.Text(status, string(body))
	resp.Headers["Content-Type"] = "application/json"
	return resp
}

// Text returns body verbatim.
func (c CORS) Text(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    c.Headers(),
		Body:       body,
	}
}

// Empty returns a response without a body.
func (c CORS) Empty(status int) events.APIGatewayProxyResponse {
	return c.Text(status, "")
}

// Null returns status with the literal body null.
func (c CORS) Null(status int) events.APIGatewayProxyResponse {
	return c.Text(status, NullBody)
}
