package transpose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSemitonesOutOfRange reports a transposition offset outside [-12, +12].
var ErrSemitonesOutOfRange = errors.New("semitones out of range [-12, 12]")

// stepSemitones maps diatonic note letters to pitch classes.
var stepSemitones = map[string]int{
	"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11,
}

// sharpSpellings maps pitch classes to (step, alter) preferring sharps.
var sharpSpellings = [12]struct {
	Step  string
	Alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"D", 1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"A", 1}, {"B", 0},
}

// flatSpellings maps pitch classes to (step, alter) preferring flats.
var flatSpellings = [12]struct {
	Step  string
	Alter int
}{
	{"C", 0}, {"D", -1}, {"D", 0}, {"E", -1}, {"E", 0}, {"F", 0},
	{"G", -1}, {"G", 0}, {"A", -1}, {"A", 0}, {"B", -1}, {"B", 0},
}

// ParseKey resolves a user-facing key name such as "C", "Bb", "F#m", "Ebmaj"
// or "Amin" to its tonic pitch class.
func ParseKey(name string) (int, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("empty key name")
	}

	// Strip a mode suffix; the tonic alone determines the interval.
	rest := trimmed[1:]
	switch {
	case strings.HasSuffix(rest, "maj"):
		rest = strings.TrimSuffix(rest, "maj")
	case strings.HasSuffix(rest, "min"):
		rest = strings.TrimSuffix(rest, "min")
	case strings.HasSuffix(rest, "M"):
		rest = strings.TrimSuffix(rest, "M")
	case strings.HasSuffix(rest, "m"):
		rest = strings.TrimSuffix(rest, "m")
	}

	letter := strings.ToUpper(trimmed[:1])
	base, ok := stepSemitones[letter]
	if !ok {
		return 0, fmt.Errorf("unknown key %q", name)
	}

	switch rest {
	case "":
		return base, nil
	case "#":
		return (base + 1) % 12, nil
	case "b":
		return (base + 11) % 12, nil
	default:
		return 0, fmt.Errorf("unknown key %q", name)
	}
}

// KeyInterval computes the semitone offset from one key tonic to another,
// always choosing the smallest absolute interval. A tritone tie resolves
// upward.
func KeyInterval(fromKey, toKey string) (int, error) {
	from, err := ParseKey(fromKey)
	if err != nil {
		return 0, fmt.Errorf("source key: %w", err)
	}
	to, err := ParseKey(toKey)
	if err != nil {
		return 0, fmt.Errorf("destination key: %w", err)
	}

	interval := ((to - from) % 12 + 12) % 12
	if interval > 6 {
		interval -= 12
	}
	return interval, nil
}

// validateSemitones enforces the supported offset range.
func validateSemitones(semitones int) error {
	if semitones < -12 || semitones > 12 {
		return fmt.Errorf("%w: %d", ErrSemitonesOutOfRange, semitones)
	}
	return nil
}

// transposeFifths shifts a key signature by the given semitone offset,
// keeping the result within the circle of fifths range [-5, 6].
func transposeFifths(fifths, semitones int) int {
	pc := ((fifths * 7 % 12) + 12) % 12
	pc = ((pc+semitones)%12 + 12) % 12
	out := pc * 7 % 12
	if out > 6 {
		out -= 12
	}
	return out
}

// transposePitch shifts one spelled pitch by the offset, respelling by the
// flat/sharp preference of the destination key signature.
func transposePitch(step string, alter, octave, semitones int, preferFlats bool) (string, int, int, error) {
	base, ok := stepSemitones[strings.ToUpper(step)]
	if !ok {
		return "", 0, 0, fmt.Errorf("unknown pitch step %q", step)
	}
	if semitones == 0 {
		// Identity transposition keeps the original spelling.
		return strings.ToUpper(step), alter, octave, nil
	}

	midi := base + alter + 12*(octave+1) + semitones
	pc := ((midi % 12) + 12) % 12
	newOctave := midi/12 - 1

	spelling := sharpSpellings[pc]
	if preferFlats {
		spelling = flatSpellings[pc]
	}
	return spelling.Step, spelling.Alter, newOctave, nil
}
