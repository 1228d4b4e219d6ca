package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/subcart/internal/common"
)

// Routes mounts the versioned API onto a router. Write endpoints optionally
// pass through the idempotency middleware; a zero-value Idem is a no-op.
func Routes(h *Handler, idem common.Idem) http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)

	r.Route("/carts", func(c chi.Router) {
		c.With(idem.Middleware).Post("/", h.CreateCart)
		c.Route("/{cartID}", func(one chi.Router) {
			one.Get("/", h.GetCart)
			one.Get("/totals", h.GetTotals)
			one.With(idem.Middleware).Post("/totalize", h.Totalize)
			one.With(idem.Middleware).Post("/items", h.AddItem)
			one.With(idem.Middleware).Patch("/items/{itemKey}", h.UpdateItem)
			one.Delete("/items/{itemKey}", h.RemoveItem)
			one.Put("/address", h.SetAddress)
			one.Put("/shipping-method", h.SetShippingMethod)
			one.Put("/discount", h.SetDiscount)
		})
	})

	return r
}
