package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/reboul/storefront/internal/domain/catalog"
	"github.com/reboul/storefront/internal/domain/product"
)

// productResponse is the wire form of a product.
type productResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Price       json.Number    `json:"price"`
	Description string         `json:"description"`
	Images      []string       `json:"images"`
	Categories  []int64        `json:"categories"`
	SizeStock   map[string]int `json:"sizeStock"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func toProductResponse(p *product.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       json.Number(p.Price.StringFixed(2)),
		Description: p.Description,
		Images:      p.Images,
		Categories:  p.Categories,
		SizeStock:   p.SizeStock,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if resp.Categories == nil {
		resp.Categories = []int64{}
	}
	if resp.SizeStock == nil {
		resp.SizeStock = map[string]int{}
	}
	return resp
}

// productRequest is the body of create and update. Price accepts a number
// or a numeric string.
type productRequest struct {
	Name        string           `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Description string           `json:"description"`
	Images      []string         `json:"images"`
	Categories  []int64          `json:"categories"`
	SizeStock   map[string]any   `json:"sizeStock"`
	Status      string           `json:"status"`
}

func (req productRequest) input() catalog.Input {
	return catalog.Input{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Images:      req.Images,
		Categories:  req.Categories,
		SizeStock:   req.SizeStock,
		Status:      product.Status(req.Status),
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Product deleted successfully"})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.SetStatus(r.Context(), chi.URLParam(r, "id"), product.Status(req.Status)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) decrementStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size     string `json:"size"`
		Quantity int    `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.stock.Decrement(r.Context(), chi.URLParam(r, "id"), req.Size, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryResponse, len(categories))
	for i, c := range categories {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, out)
}
