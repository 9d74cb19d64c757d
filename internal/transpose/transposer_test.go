package transpose

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseKey(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"C", 0},
		{"Cmaj", 0},
		{"CM", 0},
		{"Cm", 0},
		{"C#", 1},
		{"Db", 1},
		{"D", 2},
		{"Eb", 3},
		{"Em", 4},
		{"F#m", 6},
		{"Gb", 6},
		{"G", 7},
		{"Abmaj", 8},
		{"Bb", 10},
		{"Bmin", 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseKey(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, name := range []string{"", "H", "C##", "Cx", "12"} {
		_, err := ParseKey(name)
		assert.Error(t, err, "key %q", name)
	}
}

func TestKeyIntervalSmallestAbsolute(t *testing.T) {
	cases := []struct {
		from, to string
		want     int
	}{
		{"C", "D", 2},
		{"C", "F", 5},
		{"C", "G", -5}, // +7 and -5 are enharmonic; smallest magnitude wins
		{"C", "B", -1},
		{"B", "C", 1},
		{"C", "F#", 6}, // tritone tie resolves upward
		{"G", "C", 5},
		{"Bb", "C", 2},
		{"C", "C", 0},
	}
	for _, tc := range cases {
		got, err := KeyInterval(tc.from, tc.to)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestTransposeFifths(t *testing.T) {
	cases := []struct {
		fifths, semitones, want int
	}{
		{0, 2, 2},   // C -> D
		{0, -5, 1},  // C -> G
		{0, 5, -1},  // C -> F
		{1, 2, 3},   // G -> A
		{-2, 2, 0},  // Bb -> C
		{0, 0, 0},
		{2, -2, 0},  // D -> C
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, transposeFifths(tc.fifths, tc.semitones),
			"fifths %d + %d semitones", tc.fifths, tc.semitones)
	}
}

func TestTransposePitch(t *testing.T) {
	cases := []struct {
		step        string
		alter       int
		octave      int
		semitones   int
		preferFlats bool
		wantStep    string
		wantAlter   int
		wantOctave  int
	}{
		{"C", 0, 4, 2, false, "D", 0, 4},
		{"B", 0, 4, 1, false, "C", 0, 5},
		{"C", 0, 4, -1, true, "B", 0, 3},
		{"C", 0, 4, 1, false, "C", 1, 4},
		{"C", 0, 4, 1, true, "D", -1, 4},
		{"F", 1, 3, 0, false, "F", 1, 3},
		{"A", 0, 4, 12, false, "A", 0, 5},
		{"A", 0, 4, -12, false, "A", 0, 3},
	}
	for _, tc := range cases {
		step, alter, octave, err := transposePitch(tc.step, tc.alter, tc.octave, tc.semitones, tc.preferFlats)
		require.NoError(t, err)
		assert.Equal(t, tc.wantStep, step)
		assert.Equal(t, tc.wantAlter, alter)
		assert.Equal(t, tc.wantOctave, octave)
	}
}

const scoreFixture = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="4.0">
  <part id="P1">
    <measure number="1">
      <attributes>
        <divisions>4</divisions>
        <key><fifths>0</fifths></key>
      </attributes>
      <note>
        <pitch><step>C</step><octave>4</octave></pitch>
        <duration>4</duration>
      </note>
      <note>
        <pitch><step>E</step><octave>4</octave></pitch>
        <duration>4</duration>
      </note>
      <note>
        <pitch><step>B</step><alter>-1</alter><octave>4</octave></pitch>
        <duration>4</duration>
      </note>
    </measure>
  </part>
</score-partwise>
`

// parsedScore extracts the fields the tests assert on.
type parsedScore struct {
	Fifths  int `xml:"part>measure>attributes>key>fifths"`
	Notes   []struct {
		Pitch struct {
			Step   string `xml:"step"`
			Alter  int    `xml:"alter"`
			Octave int    `xml:"octave"`
		} `xml:"pitch"`
		Duration int `xml:"duration"`
	} `xml:"part>measure>note"`
}

func transposeFixture(t *testing.T, semitones int) (parsedScore, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "score.musicxml")
	out := filepath.Join(dir, "transposed.musicxml")
	require.NoError(t, os.WriteFile(in, []byte(scoreFixture), 0o644))

	tr := NewTransposer(zap.NewNop())
	require.NoError(t, tr.TransposeFile(in, out, semitones))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var score parsedScore
	require.NoError(t, xml.Unmarshal(raw, &score))
	return score, string(raw)
}

func TestTransposeFileUpTwoSemitones(t *testing.T) {
	score, raw := transposeFixture(t, 2)

	assert.Equal(t, 2, score.Fifths, "C major should become D major")
	require.Len(t, score.Notes, 3)
	assert.Equal(t, "D", score.Notes[0].Pitch.Step)
	assert.Equal(t, 4, score.Notes[0].Pitch.Octave)
	assert.Equal(t, "F", score.Notes[1].Pitch.Step)
	assert.Equal(t, 1, score.Notes[1].Pitch.Alter)
	assert.Equal(t, "C", score.Notes[2].Pitch.Step)
	assert.Equal(t, 5, score.Notes[2].Pitch.Octave)

	// Non-pitch content is untouched.
	assert.Contains(t, raw, "<divisions>4</divisions>")
	assert.Contains(t, raw, `<measure number="1">`)
	for _, note := range score.Notes {
		assert.Equal(t, 4, note.Duration)
	}
}

func TestTransposeFileZeroKeepsPitches(t *testing.T) {
	score, _ := transposeFixture(t, 0)

	assert.Equal(t, 0, score.Fifths)
	assert.Equal(t, "C", score.Notes[0].Pitch.Step)
	assert.Equal(t, "E", score.Notes[1].Pitch.Step)
	assert.Equal(t, "B", score.Notes[2].Pitch.Step)
	assert.Equal(t, -1, score.Notes[2].Pitch.Alter)
}

func TestTransposeFileByKeyComputesInterval(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "score.musicxml")
	out := filepath.Join(dir, "transposed.musicxml")
	require.NoError(t, os.WriteFile(in, []byte(scoreFixture), 0o644))

	tr := NewTransposer(zap.NewNop())
	semitones, err := tr.TransposeFileByKey(in, out, "C", "G")
	require.NoError(t, err)
	assert.Equal(t, -5, semitones)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var score parsedScore
	require.NoError(t, xml.Unmarshal(raw, &score))

	// The resulting tonic is G regardless of interval direction.
	assert.Equal(t, 1, score.Fifths, "destination key should be G major")
	assert.Equal(t, "G", score.Notes[0].Pitch.Step)
	assert.Equal(t, 3, score.Notes[0].Pitch.Octave)
}

func TestTransposeFileRejectsOutOfRange(t *testing.T) {
	tr := NewTransposer(zap.NewNop())
	err := tr.TransposeFile("in.musicxml", "out.musicxml", 13)
	require.ErrorIs(t, err, ErrSemitonesOutOfRange)
	err = tr.TransposeFile("in.musicxml", "out.musicxml", -13)
	require.ErrorIs(t, err, ErrSemitonesOutOfRange)
}

func TestTransposeFileMissingInput(t *testing.T) {
	dir := t.TempDir()
	tr := NewTransposer(zap.NewNop())
	err := tr.TransposeFile(filepath.Join(dir, "absent.musicxml"), filepath.Join(dir, "out.musicxml"), 2)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "open score"))
}
