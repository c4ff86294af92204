package styles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artivo/restyle-api/internal/pipeline"
)

func TestGetStyleKnownRef(t *testing.T) {
	catalog := NewCatalog()

	style, err := catalog.GetStyle(context.Background(), "styles/watercolor")
	require.NoError(t, err)
	assert.Equal(t, "Watercolor", style.Name)
	assert.NotEmpty(t, style.Prompt)
}

func TestGetStyleUnknownRef(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.GetStyle(context.Background(), "styles/nope")
	assert.ErrorIs(t, err, pipeline.ErrStyleNotFound)
}

func TestGetStyleReturnsCopy(t *testing.T) {
	catalog := NewCatalog()

	style, err := catalog.GetStyle(context.Background(), "styles/pop-art")
	require.NoError(t, err)
	style.Prompt = "mutated"

	again, err := catalog.GetStyle(context.Background(), "styles/pop-art")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Prompt)
}

func TestListReturnsAllStyles(t *testing.T) {
	catalog := NewCatalog()
	assert.Len(t, catalog.List(), len(builtin))
}
