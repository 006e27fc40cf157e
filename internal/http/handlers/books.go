package handlers

import "net/http"

func (a *App) Books(w http.ResponseWriter, r *http.Request) {
	books, err := a.Catalog.Books(r.Context())
	if err != nil {
		a.fail(w, r, err, "Failed to fetch books.")
		return
	}
	a.json(w, http.StatusOK, books)
}
