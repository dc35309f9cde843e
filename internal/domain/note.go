package domain

import (
	"math"
	"strconv"
)

// Note is one discrete note event extracted from the vocal stem. Times are
// seconds from the start of the track, rounded to millisecond precision.
type Note struct {
	Note      string  `json:"note"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	EndTime   float64 `json:"end_time"`
}

// MinNoteDuration is the shortest note worth keeping in a transcription.
// Anything shorter is pitch-tracker jitter, not something a singer sang.
const MinNoteDuration = 0.1

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// MIDINoteName converts a MIDI note number to scientific pitch notation
// (60 = "C4", 69 = "A4"). Values outside the MIDI range 0..127 yield "".
func MIDINoteName(midi int) string {
	if midi < 0 || midi > 127 {
		return ""
	}
	octave := midi/12 - 1
	return pitchNames[midi%12] + strconv.Itoa(octave)
}

// NewNote builds a note event from raw onset/offset seconds, rounding the
// way the transcription output is serialized.
func NewNote(name string, onset, offset float64) Note {
	return Note{
		Note:      name,
		StartTime: Round3(onset),
		Duration:  Round3(offset - onset),
		EndTime:   Round3(offset),
	}
}

// FilterShortNotes drops notes shorter than MinNoteDuration, preserving order.
func FilterShortNotes(notes []Note) []Note {
	kept := make([]Note, 0, len(notes))
	for _, n := range notes {
		if n.Duration >= MinNoteDuration {
			kept = append(kept, n)
		}
	}
	return kept
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
