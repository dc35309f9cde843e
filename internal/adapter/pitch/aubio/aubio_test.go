package aubio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotes(t *testing.T) {
	// aubionotes prints the first onset alone, then one note per line.
	out := "0.011609\n" +
		"60.000000\t0.500000\t1.700000\n" +
		"62.000000\t1.700000\t2.250000\n" +
		"69.000000\t2.300000\t2.900000\n"

	notes := parseNotes(out)

	require.Len(t, notes, 3)
	assert.Equal(t, "C4", notes[0].Note)
	assert.Equal(t, 0.5, notes[0].StartTime)
	assert.Equal(t, 1.7, notes[0].EndTime)
	assert.Equal(t, 1.2, notes[0].Duration)
	assert.Equal(t, "D4", notes[1].Note)
	assert.Equal(t, "A4", notes[2].Note)
}

func TestParseNotes_SkipsMalformedLines(t *testing.T) {
	out := "garbage line\n" +
		"60.0\tnot-a-number\t1.0\n" +
		"60.0\t1.0\t1.0\n" + // zero-length note
		"200.0\t0.0\t1.0\n" + // out of MIDI range
		"64.0\t0.0\t0.5\n"

	notes := parseNotes(out)

	require.Len(t, notes, 1)
	assert.Equal(t, "E4", notes[0].Note)
}

func TestParseNotes_Empty(t *testing.T) {
	assert.Empty(t, parseNotes(""))
}

func TestParseNotes_RoundsFractionalMIDI(t *testing.T) {
	notes := parseNotes("59.6\t0.0\t0.5\n")

	require.Len(t, notes, 1)
	assert.Equal(t, "C4", notes[0].Note)
}
