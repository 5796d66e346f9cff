package localapi

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/gurre/ddb-catalog/authorizer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://d33a3jyn7jy5kc.cloudfront.net"

func recordingHandler(got *events.APIGatewayProxyRequest, resp events.APIGatewayProxyResponse) ProxyHandler {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		*got = req
		return resp, nil
	}
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(h, origin, zerolog.New(io.Discard))
}

func TestGetProductTranslatesPathParameter(t *testing.T) {
	var got events.APIGatewayProxyRequest
	router := newRouter(Handlers{GetProduct: recordingHandler(&got, events.APIGatewayProxyResponse{
		StatusCode: 404,
		Headers:    map[string]string{"Access-Control-Allow-Methods": "GET"},
		Body:       "null",
	})})

	req := httptest.NewRequest(http.MethodGet, "/products/invalid-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
	assert.Equal(t, "GET", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "invalid-id", got.PathParameters["productId"])
	assert.Equal(t, "/products/{productId}", got.Resource)
	assert.Equal(t, http.MethodGet, got.HTTPMethod)
}

func TestCreateProductPassesBody(t *testing.T) {
	var got events.APIGatewayProxyRequest
	router := newRouter(Handlers{CreateProduct: recordingHandler(&got, events.APIGatewayProxyResponse{StatusCode: 200})})

	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`{"title":"Lamp","price":10}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"title":"Lamp","price":10}`, got.Body)
	assert.Equal(t, "application/json", got.Headers["Content-Type"])
}

func TestHandlerErrorIsBadGateway(t *testing.T) {
	router := newRouter(Handlers{ListProducts: func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("boom")
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(Handlers{CreateProduct: recordingHandler(new(events.APIGatewayProxyRequest), events.APIGatewayProxyResponse{StatusCode: 200})})

	req := httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestImportRequiresAuthorization(t *testing.T) {
	auth := authorizer.New(authorizer.ParseCredentials("alice=TEST_PASSWORD"), zerolog.New(io.Discard))

	var got events.APIGatewayProxyRequest
	router := newRouter(Handlers{
		ImportFile: recordingHandler(&got, events.APIGatewayProxyResponse{StatusCode: 200, Body: "https://signed"}),
		Authorize:  auth.Authorize,
	})

	testCases := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"malformed", "Basic " + base64.StdEncoding.EncodeToString([]byte("alice")), http.StatusUnauthorized},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:nope")), http.StatusForbidden},
		{"valid", "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:TEST_PASSWORD")), http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/import?name=products.csv", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, "https://signed", rec.Body.String())
				assert.Equal(t, "products.csv", got.QueryStringParameters["name"])
			}
		})
	}
}
