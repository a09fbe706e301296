package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func TestEmbeddingText(t *testing.T) {
	entry := classify.CatalogEntry{
		Description: "Coffee, roasted, not decaffeinated",
		Keywords:    []string{"coffee", "roasted"},
	}
	assert.Equal(t, "Coffee, roasted, not decaffeinated coffee roasted", embeddingText(entry))

	assert.Equal(t, "", embeddingText(classify.CatalogEntry{Code: "0901.21"}))
	assert.Equal(t, "beans", embeddingText(classify.CatalogEntry{Keywords: []string{"beans"}}))
}

func TestLoadRulesEmbeddedDefault(t *testing.T) {
	rs, err := loadRules(config.RulesConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, rs.Chapters)
}
