// Package styles provides the built-in style catalog. Styles are fixed at
// build time; catalog management is out of scope for this service.
package styles

import (
	"context"
	"fmt"

	"github.com/artivo/restyle-api/internal/pipeline"
)

// builtin is the fixed set of styles the service ships with.
var builtin = map[string]*pipeline.Style{
	"styles/watercolor": {
		Ref:    "styles/watercolor",
		Name:   "Watercolor",
		Prompt: "Repaint the scene as a loose watercolor with soft washes and visible paper grain.",
	},
	"styles/oil-painting": {
		Ref:    "styles/oil-painting",
		Name:   "Oil Painting",
		Prompt: "Repaint the scene as a classical oil painting with thick impasto brushwork.",
	},
	"styles/pencil-sketch": {
		Ref:    "styles/pencil-sketch",
		Name:   "Pencil Sketch",
		Prompt: "Redraw the scene as a detailed graphite pencil sketch with cross-hatched shading.",
	},
	"styles/pop-art": {
		Ref:    "styles/pop-art",
		Name:   "Pop Art",
		Prompt: "Rework the scene in bold pop art style with flat saturated colors and halftone dots.",
	},
	"styles/cyberpunk": {
		Ref:    "styles/cyberpunk",
		Name:   "Cyberpunk",
		Prompt: "Rework the scene as a neon-lit cyberpunk night city with rain-slicked reflections.",
	},
}

// Catalog is the built-in implementation of pipeline.StyleCatalog.
type Catalog struct{}

// NewCatalog returns the built-in style catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// GetStyle returns the style for the given ref.
func (c *Catalog) GetStyle(_ context.Context, ref string) (*pipeline.Style, error) {
	style, ok := builtin[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrStyleNotFound, ref)
	}
	cp := *style
	return &cp, nil
}

// List returns all built-in styles, for the API's catalog listing.
func (c *Catalog) List() []*pipeline.Style {
	out := make([]*pipeline.Style, 0, len(builtin))
	for _, style := range builtin {
		cp := *style
		out = append(out, &cp)
	}
	return out
}
