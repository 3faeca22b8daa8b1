package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/upload"
)

// maxBodySize bounds request bodies. Inline images dominate the size.
const maxBodySize = 8 << 20

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v. Malformed bodies are reported
// as a validation error on "body".
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &product.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// classify maps a domain error to its HTTP status and public message.
func classify(err error) errorResponse {
	var ve *product.ValidationError
	switch {
	case errors.As(err, &ve):
		return errorResponse{Code: http.StatusBadRequest, Message: "validation failed", Details: ve.Error()}
	case errors.Is(err, product.ErrNotFound):
		return errorResponse{Code: http.StatusNotFound, Message: "product not found"}
	case errors.Is(err, upload.ErrNotFound):
		return errorResponse{Code: http.StatusNotFound, Message: "file not found"}
	case errors.Is(err, upload.ErrInvalidImage), errors.Is(err, upload.ErrTooLarge):
		return errorResponse{Code: http.StatusBadRequest, Message: "invalid image", Details: err.Error()}
	case errors.Is(err, stock.ErrInsufficientStock):
		return errorResponse{Code: http.StatusConflict, Message: "insufficient stock", Details: err.Error()}
	case errors.Is(err, stock.ErrUnknownSize):
		return errorResponse{Code: http.StatusBadRequest, Message: "unknown size", Details: err.Error()}
	case errors.Is(err, stock.ErrInvalidQuantity):
		return errorResponse{Code: http.StatusBadRequest, Message: "invalid quantity", Details: err.Error()}
	case errors.Is(err, cart.ErrInvalidPromo):
		return errorResponse{Code: http.StatusBadRequest, Message: "invalid promo code"}
	case errors.Is(err, cart.ErrUnavailable):
		return errorResponse{Code: http.StatusConflict, Message: "product is not available"}
	case errors.Is(err, product.ErrUpstream):
		return errorResponse{Code: http.StatusBadGateway, Message: "upstream failure"}
	default:
		return errorResponse{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := classify(err)
	lg := zctx.From(r.Context())
	if resp.Code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", resp.Code), zap.Error(err))
	}
	writeJSON(w, resp.Code, resp)
}
