package api

import (
	"net/http"
	"sort"

	"github.com/artivo/restyle-api/internal/api/shared"
	"github.com/artivo/restyle-api/internal/platform/styles"
)

// StylesHandler serves the built-in style catalog.
type StylesHandler struct {
	catalog *styles.Catalog
}

// NewStylesHandler creates a new StylesHandler.
func NewStylesHandler(catalog *styles.Catalog) *StylesHandler {
	return &StylesHandler{catalog: catalog}
}

// ListStyles handles GET /api/styles requests.
func (h *StylesHandler) ListStyles(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.List()

	out := make([]StyleResponse, 0, len(all))
	for _, style := range all {
		out = append(out, StyleResponse{Ref: style.Ref, Name: style.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })

	shared.RespondWithJSON(w, r, http.StatusOK, out)
}
