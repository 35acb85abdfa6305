package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sealed-config/directory"
	"github.com/ruteri/sealed-config/interfaces"
)

// DirectoryHandler exposes a directory over the routes directory.HTTPDirectory calls.
func (h *Handler) DirectoryHandler(dir interfaces.Directory, lookup interfaces.PublicKeyLookup) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, lookup: lookup, h: h}
}

// DirectoryHandler serves directory searches and principal key lookups.
type DirectoryHandler struct {
	dir    interfaces.Directory
	lookup interfaces.PublicKeyLookup
	h      *Handler
}

// RegisterRoutes mounts the directory routes on r.
func (d *DirectoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/directory/search/{kind}", d.HandleSearch)
	r.Get("/api/v1/directory/principals/{kind}/{id}", d.HandleLookup)
}

// HandleSearch runs a directory search.
//
// URL format: POST /api/v1/directory/search/{kind}
//
// Request body: JSON, see directory.SearchRequestBody
//
// Response: JSON, see directory.SearchResponseBody
func (d *DirectoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	kind := interfaces.PrincipalKind(chi.URLParam(r, "kind"))
	if err := kind.Validate(); err != nil {
		d.h.writeError(w, r, badRequest(err))
		return
	}

	var body directory.SearchRequestBody
	if err := decodeBody(r, &body); err != nil {
		d.h.writeError(w, r, err)
		return
	}

	rows, err := d.dir.Search(r.Context(), interfaces.SearchRequest{
		Kind:    kind,
		Query:   body.Query,
		Fields:  body.Fields,
		Rows:    body.Rows,
		Partial: body.Partial,
	})
	if err != nil {
		d.h.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []interfaces.DirectoryRecord{}
	}

	d.h.writeJSON(w, http.StatusOK, directory.SearchResponseBody{Total: len(rows), Rows: rows})
}

// HandleLookup returns a single principal with its public key.
//
// URL format: GET /api/v1/directory/principals/{kind}/{id}
//
// Response: JSON, see interfaces.DirectoryRecord
func (d *DirectoryHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	kind := interfaces.PrincipalKind(chi.URLParam(r, "kind"))
	if err := kind.Validate(); err != nil {
		d.h.writeError(w, r, badRequest(err))
		return
	}
	id := chi.URLParam(r, "id")

	key, err := d.lookup.LookupPublicKey(r.Context(), kind, id)
	if err != nil {
		d.h.writeError(w, r, err)
		return
	}

	d.h.writeJSON(w, http.StatusOK, interfaces.DirectoryRecord{Name: id, PublicKey: string(key.PEM())})
}
