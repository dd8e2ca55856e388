package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgramPage(t *testing.T) {
	got, err := ParseProgramPage(testBase, fixture(t, "program.html"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.zeturf.com/en/reunion-du-jour/2026-02-18/R1-vincennes",
		"https://www.zeturf.com/en/reunion-du-jour/2026-02-18/R2-solvalla",
	}, got)
}

func TestParseMeetingPage(t *testing.T) {
	got, err := ParseMeetingPage(testBase, fixture(t, "meeting_fr.html"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.zeturf.com/en/course/2026-02-18/R1C1-prix-a",
		"https://www.zeturf.com/en/course/2026-02-18/R1C3-prix-c",
	}, got)

	got, err = ParseMeetingPage(testBase, fixture(t, "meeting_se.html"))
	require.NoError(t, err)
	assert.Empty(t, got, "foreign meetings are skipped")
}
