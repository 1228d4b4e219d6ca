package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/cartstore"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/common"
	"github.com/noah-isme/subcart/internal/money"
	"github.com/noah-isme/subcart/internal/obs"
	"github.com/noah-isme/subcart/internal/queue"
	"github.com/noah-isme/subcart/internal/session"
	"github.com/noah-isme/subcart/internal/shipping"
	"github.com/noah-isme/subcart/internal/totals"
)

// Handler wires the cart and catalog services to HTTP.
type Handler struct {
	Carts    cartstore.Store
	Catalog  catalog.Provider
	Products *catalog.Store
	// Engines stamps out a fresh totalization engine per request; engines
	// hold per-pass state and must not be shared across in-flight requests.
	Engines  totals.Factory
	Sessions session.Store
	Tasks    queue.Enqueuer
	Logger   *zerolog.Logger
	Currency string
	CartTTL  time.Duration
	Now      func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// CreateCart provisions an empty cart and schedules its expiry.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	c := cart.New(uuid.NewString())
	if err := h.Carts.Save(r.Context(), c); err != nil {
		h.writeError(w, err)
		return
	}
	if h.CartTTL > 0 {
		if err := h.Tasks.EnqueueExpire(r.Context(), c.ID, h.CartTTL); err != nil && h.Logger != nil {
			h.Logger.Warn().Err(err).Str("cart_id", c.ID).Msg("schedule cart expiry")
		}
	}
	h.observeMutation("create", "success")
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"cartId": c.ID, "currency": h.Currency},
	})
}

// GetCart returns the cart with its current totals and recurring snapshots.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.cartView(c)})
}

// AddItem adds a product to the cart and recomputes totals.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string `json:"productId"`
		Qty       int    `json:"qty"`
		// SignUpFee overrides the catalog sign-up fee, minor units.
		SignUpFee *int64 `json:"signUpFee,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	productID, err := uuid.Parse(strings.TrimSpace(payload.ProductID))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	if payload.Qty <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must be positive", nil)
		return
	}

	product, err := h.Catalog.Product(r.Context(), productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		h.writeError(w, err)
		return
	}

	item := catalog.NewLineItem(product, "", payload.Qty, h.now())
	if payload.SignUpFee != nil {
		fee := money.Money(*payload.SignUpFee)
		item.SignUpFee = &fee
	}
	if err := c.AddItem(item); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line item", nil)
		return
	}
	h.totalizeAndRespond(w, r, c, "add_item")
}

// UpdateItem changes a line's quantity. Quantity zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "itemKey")
	item := c.Items[key]
	if item == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "item not in cart", nil)
		return
	}
	var payload struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Qty < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must not be negative", nil)
		return
	}
	if payload.Qty == 0 {
		delete(c.Items, key)
	} else {
		item.Qty = payload.Qty
	}
	h.totalizeAndRespond(w, r, c, "update_item")
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "itemKey")
	if c.Items[key] == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "item not in cart", nil)
		return
	}
	delete(c.Items, key)
	h.totalizeAndRespond(w, r, c, "remove_item")
}

// SetAddress validates and stores the shipping address. An invalid address is
// recoverable: the cart keeps its previous shipping state and the response
// carries a notice instead of failing the request.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	var addr shipping.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := shipping.ValidateAddress(addr); err != nil {
		common.JSON(w, http.StatusOK, map[string]any{
			"data": h.cartView(c),
			"notice": map[string]any{
				"code":    "INVALID_ADDRESS",
				"message": "address not saved; previous shipping state kept",
			},
		})
		return
	}
	if h.Sessions != nil {
		payload, err := json.Marshal(addr)
		if err == nil {
			err = h.Sessions.Set(r.Context(), addressKey(c.ID), string(payload))
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.totalizeAndRespond(w, r, c, "set_address")
}

// SetShippingMethod records the chosen shipping method and recomputes totals.
func (h *Handler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	var payload struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	method := strings.TrimSpace(payload.Method)
	if method == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "method is required", nil)
		return
	}
	c.ShippingMethod = method
	if h.Sessions != nil {
		if err := h.Sessions.Set(r.Context(), totals.ShippingMethodKey(c.ID), method); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.totalizeAndRespond(w, r, c, "set_shipping_method")
}

// SetDiscount applies a fixed pre-tax discount to the cart contents. The
// amount is clamped to the contents total during calculation; zero removes
// the discount.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Amount < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must not be negative", nil)
		return
	}
	c.DiscountTotal = money.Money(payload.Amount)
	h.totalizeAndRespond(w, r, c, "set_discount")
}

// Totalize forces a totals recompute. With ?async=1 the work is handed to the
// background worker and the call returns immediately.
func (h *Handler) Totalize(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("async") == "1" {
		if err := h.Tasks.EnqueueTotalize(r.Context(), c.ID); err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusAccepted, map[string]any{
			"data": map[string]any{"cartId": c.ID, "status": "queued"},
		})
		return
	}
	h.totalizeAndRespond(w, r, c, "totalize")
}

// GetTotals returns only the aggregate view of the cart.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": totalsView(c)})
}

// ListProducts returns a catalog page.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	products, total, err := h.Products.List(r.Context(), page, perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": products,
		"meta": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	product, err := h.Catalog.Product(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

func (h *Handler) loadCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return nil, false
	}
	c, err := h.Carts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, cartstore.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
			return nil, false
		}
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) totalizeAndRespond(w http.ResponseWriter, r *http.Request, c *cart.Cart, op string) {
	if _, err := h.Engines.NewEngine().CalculateTotals(r.Context(), c); err != nil {
		h.observeMutation(op, "error")
		h.writeError(w, err)
		return
	}
	if err := h.Carts.Save(r.Context(), c); err != nil {
		h.observeMutation(op, "error")
		h.writeError(w, err)
		return
	}
	h.observeMutation(op, "success")
	common.JSON(w, http.StatusOK, map[string]any{"data": h.cartView(c)})
}

func (h *Handler) cartView(c *cart.Cart) map[string]any {
	return map[string]any{
		"cart":     c,
		"currency": h.Currency,
		"totals":   totalsView(c),
	}
}

func totalsView(c *cart.Cart) map[string]any {
	snapshots := make(map[string]any, len(c.RecurringSnapshots))
	for key, snap := range c.RecurringSnapshots {
		snapshots[key] = map[string]any{
			"startDate":       snap.StartDate,
			"trialEndDate":    zeroableTime(snap.TrialEndDate),
			"nextPaymentDate": zeroableTime(snap.NextPaymentDate),
			"endDate":         zeroableTime(snap.EndDate),
			"total":           snap.Cart.Total,
			"contentsTotal":   snap.Cart.ContentsTotal,
			"shippingTotal":   snap.Cart.ShippingTotal,
			"taxTotal":        snap.Cart.TaxTotal + snap.Cart.ShippingTaxTotal,
		}
	}
	return map[string]any{
		"contentsTotal":    c.ContentsTotal,
		"taxTotal":         c.TaxTotal,
		"shippingTotal":    c.ShippingTotal,
		"shippingTaxTotal": c.ShippingTaxTotal,
		"feeTotal":         c.FeeTotal,
		"discountTotal":    c.DiscountTotal,
		"total":            c.Total,
		"recurring":        snapshots,
	}
}

func zeroableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func addressKey(cartID string) string {
	return "cart:" + cartID + ":address"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrUnknownProduct):
		common.JSONError(w, http.StatusConflict, "INVALID_CART_STATE", "cart references an unknown product", nil)
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid input", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		if h.Logger != nil {
			h.Logger.Error().Err(err).Msg("request failed")
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func (h *Handler) observeMutation(op, result string) {
	if obs.CartMutationsTotal != nil {
		obs.CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}
