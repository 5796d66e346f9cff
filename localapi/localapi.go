// Package localapi serves the catalog API handlers over plain HTTP for
// local development. Requests are translated into the API Gateway proxy
// events the deployed functions receive, so the same handler code runs in
// both places.
package localapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ImportMethodArn is the method ARN presented to the authorizer for /import.
const ImportMethodArn = "arn:aws:execute-api:local:000000000000:local/dev/GET/import"

// ProxyHandler is an API Gateway proxy integration handler.
type ProxyHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// AuthorizeFunc is a token authorizer.
type AuthorizeFunc func(ctx context.Context, req events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error)

// Handlers are the functions mounted on the router. Nil handlers are not
// routed.
type Handlers struct {
	ListProducts  ProxyHandler
	GetProduct    ProxyHandler
	CreateProduct ProxyHandler
	ImportFile    ProxyHandler
	Authorize     AuthorizeFunc
}

// Server wraps the HTTP server setup.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr.
func New(addr string, h Handlers, origin string, logger zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h, origin, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewRouter wires the API routes.
func NewRouter(h Handlers, origin string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{origin},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       time.Hour,
	}))

	if h.ListProducts != nil {
		router.GET("/products", proxy(h.ListProducts, "/products"))
	}
	if h.GetProduct != nil {
		router.GET("/products/:productId", proxy(h.GetProduct, "/products/{productId}"))
	}
	if h.CreateProduct != nil {
		router.POST("/products", proxy(h.CreateProduct, "/products"))
	}
	if h.ImportFile != nil {
		handlers := []gin.HandlerFunc{proxy(h.ImportFile, "/import")}
		if h.Authorize != nil {
			handlers = append([]gin.HandlerFunc{authorize(h.Authorize, ImportMethodArn)}, handlers...)
		}
		router.GET("/import", handlers...)
	}

	return router
}

// ProxyRequest translates an HTTP request into a proxy event.
func ProxyRequest(c *gin.Context, resource string) (events.APIGatewayProxyRequest, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return events.APIGatewayProxyRequest{}, err
		}
	}

	req := events.APIGatewayProxyRequest{
		Resource:                        resource,
		Path:                            c.Request.URL.Path,
		HTTPMethod:                      c.Request.Method,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string(c.Request.Header),
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string(c.Request.URL.Query()),
		PathParameters:                  map[string]string{},
		Body:                            string(body),
	}
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			req.Headers[k] = v[0]
		}
	}
	for k, v := range req.MultiValueQueryStringParameters {
		if len(v) > 0 {
			req.QueryStringParameters[k] = v[0]
		}
	}
	for _, p := range c.Params {
		req.PathParameters[p.Key] = p.Value
	}
	return req, nil
}

func proxy(handler ProxyHandler, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := ProxyRequest(c, resource)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "unreadable request body"})
			return
		}

		resp, err := handler(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
			return
		}

		contentType := "text/plain; charset=utf-8"
		for k, v := range resp.Headers {
			if http.CanonicalHeaderKey(k) == "Content-Type" {
				contentType = v
				continue
			}
			c.Header(k, v)
		}
		c.Data(resp.StatusCode, contentType, []byte(resp.Body))
	}
}

func authorize(fn AuthorizeFunc, methodArn string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		resp, err := fn(c.Request.Context(), events.APIGatewayCustomAuthorizerRequest{
			Type:               "TOKEN",
			AuthorizationToken: token,
			MethodArn:          methodArn,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		if !allows(resp, methodArn) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "User is not authorized to access this resource with an explicit deny"})
			return
		}
		c.Next()
	}
}

func allows(resp events.APIGatewayCustomAuthorizerResponse, methodArn string) bool {
	allowed := false
	for _, stmt := range resp.PolicyDocument.Statement {
		for _, res := range stmt.Resource {
			if res != methodArn {
				continue
			}
			if stmt.Effect == "Deny" {
				return false
			}
			if stmt.Effect == "Allow" {
				allowed = true
			}
		}
	}
	return allowed
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Info()
		if len(c.Errors) > 0 {
			ev = logger.Error().Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
