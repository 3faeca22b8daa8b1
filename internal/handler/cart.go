package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/notify"
)

// SessionHeader carries the cart session id. The server generates one when
// the header is missing or malformed and always echoes it back.
const SessionHeader = "X-Cart-Session"

type sessionKey struct{}

func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := r.Header.Get(SessionHeader)
		if uuid.Validate(session) != nil {
			session = uuid.NewString()
		}
		w.Header().Set(SessionHeader, session)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func sessionFrom(r *http.Request) string {
	s, _ := r.Context().Value(sessionKey{}).(string)
	return s
}

type moneyResponse struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Display  string      `json:"display"`
}

func toMoney(m cart.Money) moneyResponse {
	return moneyResponse{
		Amount:   json.Number(m.Fixed()),
		Currency: m.Currency.String(),
		Display:  m.String(),
	}
}

type cartItemResponse struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Images    []string    `json:"images"`
	Size      string      `json:"size"`
	Quantity  int         `json:"quantity"`
}

type cartResponse struct {
	Session        string             `json:"session"`
	Items          []cartItemResponse `json:"items"`
	TotalItems     int                `json:"totalItems"`
	TotalPrice     moneyResponse      `json:"totalPrice"`
	DiscountAmount moneyResponse      `json:"discountAmount"`
	FinalPrice     moneyResponse      `json:"finalPrice"`
	PromoCode      string             `json:"promoCode"`
	PromoDiscount  int                `json:"promoDiscount"`
}

func (h *Handler) toCartResponse(session string, c *cart.Cart) cartResponse {
	sum := c.Summarize(h.currency)
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		images := it.Product.Images
		if images == nil {
			images = []string{}
		}
		items[i] = cartItemResponse{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Price:     json.Number(it.Product.Price.StringFixed(2)),
			Images:    images,
			Size:      it.Size,
			Quantity:  it.Quantity,
		}
	}
	return cartResponse{
		Session:        session,
		Items:          items,
		TotalItems:     sum.TotalItems,
		TotalPrice:     toMoney(sum.TotalPrice),
		DiscountAmount: toMoney(sum.DiscountAmount),
		FinalPrice:     toMoney(sum.FinalPrice),
		PromoCode:      sum.PromoCode,
		PromoDiscount:  sum.PromoDiscount,
	}
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toCartResponse(sessionFrom(r), c))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), sessionFrom(r))
	h.writeCart(w, r, c, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), sessionFrom(r)); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, &cart.Cart{}, nil)
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	req := itemRequest{Quantity: 1}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), sessionFrom(r), req.ProductID, req.Size, req.Quantity)
	h.writeCart(w, r, c, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), sessionFrom(r), req.ProductID, req.Size, req.Quantity)
	h.writeCart(w, r, c, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), sessionFrom(r), chi.URLParam(r, "productID"), chi.URLParam(r, "size"))
	h.writeCart(w, r, c, err)
}

func (h *Handler) applyPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.ApplyPromo(r.Context(), sessionFrom(r), req.Code)
	h.writeCart(w, r, c, err)
}

func (h *Handler) removePromo(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemovePromo(r.Context(), sessionFrom(r))
	h.writeCart(w, r, c, err)
}

type toastResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	toasts := h.toasts.List(sessionFrom(r))
	out := make([]toastResponse, len(toasts))
	for i, t := range toasts {
		out[i] = toToastResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func toToastResponse(t notify.Toast) toastResponse {
	return toastResponse{
		ID:        t.ID,
		Message:   t.Message,
		Severity:  string(t.Severity),
		CreatedAt: t.CreatedAt,
	}
}

func (h *Handler) dismissNotification(w http.ResponseWriter, r *http.Request) {
	if !h.toasts.Dismiss(sessionFrom(r), chi.URLParam(r, "toastID")) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: http.StatusNotFound, Message: "notification not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
