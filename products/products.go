// Package products implements the product API handlers served behind API
// Gateway: list, get by id and create.
package products

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-catalog/apigw"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/writer"
	"github.com/rs/zerolog"
)

// PathParameter is the route parameter holding the product id.
const PathParameter = "productId"

// Reader is the read side of the catalog.
type Reader interface {
	ListAvailable(ctx context.Context) ([]catalog.AvailableProduct, error)
	GetAvailable(ctx context.Context, id string) (catalog.AvailableProduct, error)
}

// Handler serves the product endpoints.
type Handler struct {
	reader  Reader
	writer  writer.Writer
	getCORS apigw.CORS
	putCORS apigw.CORS
	log     zerolog.Logger
}

// NewHandler creates a Handler. Responses allow requests from origin only.
// Either reader or w may be nil when the function serves only the other side.
func NewHandler(reader Reader, w writer.Writer, origin string, logger zerolog.Logger) *Handler {
	return &Handler{
		reader:  reader,
		writer:  w,
		getCORS: apigw.NewCORS(origin, http.MethodGet),
		putCORS: apigw.NewCORS(origin, http.MethodPost),
		log:     logger,
	}
}

// List returns every product joined with its stock count.
func (h *Handler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	products, err := h.reader.ListAvailable(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list products failed")
		return h.getCORS.Null(http.StatusInternalServerError), nil
	}

	h.log.Info().Int("count", len(products)).Msg("list products succeeded")
	return h.getCORS.JSON(http.StatusOK, products), nil
}

// Get returns one product, or 404 with body null when the product or its
// stock record is missing.
func (h *Handler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.PathParameters[PathParameter]
	log := h.log.With().Str("productId", id).Logger()

	product, err := h.reader.GetAvailable(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		log.Info().Msg("product not found")
		return h.getCORS.Null(http.StatusNotFound), nil
	}
	if err != nil {
		log.Error().Err(err).Msg("get product failed")
		return h.getCORS.Null(http.StatusInternalServerError), nil
	}

	return h.getCORS.JSON(http.StatusOK, product), nil
}

// createRequest distinguishes a missing price from a price of 0.
type createRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Count       int      `json:"count"`
}

// Create writes a new product and its stock record. It answers 400 when the
// body is not JSON, lacks a title or price, or carries a negative price or
// count.
func (h *Handler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body createRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		h.log.Info().Err(err).Msg("create product invalid body")
		return h.putCORS.Empty(http.StatusBadRequest), nil
	}
	if body.Title == "" || body.Price == nil || *body.Price < 0 || body.Count < 0 {
		h.log.Info().Str("body", req.Body).Msg("create product invalid request")
		return h.putCORS.Empty(http.StatusBadRequest), nil
	}

	written, err := h.writer.WriteProducts(ctx, []catalog.NewProduct{{
		Title:       body.Title,
		Description: body.Description,
		Price:       *body.Price,
		Count:       body.Count,
	}})
	if err != nil {
		h.log.Error().Err(err).Msg("create product failed")
		return h.putCORS.Null(http.StatusInternalServerError), nil
	}

	h.log.Info().Str("productId", written[0].ID).Msg("create product succeeded")
	return h.putCORS.Empty(http.StatusOK), nil
}
