package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	rs, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, rs.Chapters)
	assert.NotEmpty(t, rs.Overrides)
	assert.NotEmpty(t, rs.Terms.Phrases)
	assert.NotEmpty(t, rs.Rerank.FinishedProducts)
	assert.NotEmpty(t, rs.Differentials.Features)
	assert.Equal(t, "Coffee, tea, mate and spices", rs.ChapterName("09"))
}

func TestStopwords(t *testing.T) {
	rs, err := Load()
	require.NoError(t, err)

	assert.True(t, rs.IsStopword("the"))
	assert.True(t, rs.IsStopword("The"))
	assert.False(t, rs.IsStopword("coffee"))
}

func TestAmbiguousIndicators(t *testing.T) {
	rs, err := Load()
	require.NoError(t, err)

	at := rs.AmbiguousTermFor("coffee")
	require.NotNil(t, at)
	assert.ElementsMatch(t, []string{"09", "21"}, at.Chapters)

	var resolved string
	for _, ind := range at.Indicators {
		if ind.Matches("instant coffee 200g jar") {
			resolved = ind.Chapter
			break
		}
	}
	assert.Equal(t, "21", resolved)

	assert.Nil(t, rs.AmbiguousTermFor("bolt"))
}

func TestPhrasesSortedLongestFirst(t *testing.T) {
	rs, err := Load()
	require.NoError(t, err)

	for i := 1; i < len(rs.Terms.Phrases); i++ {
		assert.GreaterOrEqual(t,
			len(rs.Terms.Phrases[i-1].Text), len(rs.Terms.Phrases[i].Text))
	}
}

func TestLoadFromDirRejectsBadRules(t *testing.T) {
	dir := t.TempDir()
	bad := `
chapters:
  - chapter: "999"
    name: "bogus"
    priority: 3
    include: [x]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chapters.yaml"), []byte(bad), 0o644))

	_, err := LoadFromDir(dir)
	require.Error(t, err)
}

func TestLoadFromDirEmpty(t *testing.T) {
	_, err := LoadFromDir(t.TempDir())
	require.Error(t, err)
}
