package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"customcolors/internal/domain"
)

type checkoutRequest struct {
	Images []string `json:"images"`
}

type catalogCheckoutRequest struct {
	Book *domain.Book `json:"book"`
}

// CustomCheckout assembles the selected pages into a book and opens a session.
func (a *App) CustomCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.Checkout.CustomOrder(r.Context(), req.Images)
	if err != nil {
		a.fail(w, r, err, "Failed to create custom image checkout session.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"sessionUrl": session.URL})
}

// CatalogCheckout opens a session for a catalog book.
func (a *App) CatalogCheckout(w http.ResponseWriter, r *http.Request) {
	var req catalogCheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Book == nil {
		a.error(w, http.StatusBadRequest, "Book name and price are required.")
		return
	}
	session, err := a.Checkout.CatalogOrder(r.Context(), *req.Book)
	if err != nil {
		a.fail(w, r, err, "Failed to create checkout session.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": session.URL})
}

// Session resolves a paid session to its deliverable.
func (a *App) Session(w http.ResponseWriter, r *http.Request) {
	d, err := a.Checkout.Deliverable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, "Failed to retrieve session.")
		return
	}
	a.json(w, http.StatusOK, d)
}
