package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultPage(t *testing.T) {
	winner, err := ParseResultPage(fixture(t, "result.html"))
	require.NoError(t, err)
	assert.Equal(t, "Hooker Berry", winner)
}

func TestParseResultPageWithoutResult(t *testing.T) {
	winner, err := ParseResultPage(fixture(t, "race_trot.html"))
	require.NoError(t, err)
	assert.Empty(t, winner)
}
