// Package transpose shifts the pitched content of MusicXML scores by a
// semitone interval, rewriting note spellings and key signatures while
// leaving every other element of the document untouched.
package transpose

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// Transposer rewrites MusicXML files. It is stateless between calls.
type Transposer struct {
	logger *zap.Logger
}

// NewTransposer builds a transposer.
func NewTransposer(logger *zap.Logger) *Transposer {
	return &Transposer{logger: logger}
}

// pitchElement mirrors the MusicXML <pitch> element. Alter is optional and
// omitted when zero, matching common engraver output.
type pitchElement struct {
	XMLName xml.Name `xml:"pitch"`
	Step    string   `xml:"step"`
	Alter   *int     `xml:"alter,omitempty"`
	Octave  int      `xml:"octave"`
}

// TransposeFile shifts every pitch in the input score by the given semitone
// offset and writes the result to outputPath. Input and output are plain
// MusicXML; the caller is responsible for unpacking compressed containers.
func (t *Transposer) TransposeFile(inputPath, outputPath string, semitones int) error {
	if err := validateSemitones(semitones); err != nil {
		return err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open score: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".transpose-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := t.transposeStream(in, tmp, semitones); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	t.logger.Info("transposition complete",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("semitones", semitones))
	return nil
}

// TransposeFileByKey computes the tonic-to-tonic interval between two keys
// and applies it uniformly. It returns the chosen semitone offset.
func (t *Transposer) TransposeFileByKey(inputPath, outputPath, fromKey, toKey string) (int, error) {
	semitones, err := KeyInterval(fromKey, toKey)
	if err != nil {
		return 0, err
	}
	return semitones, t.TransposeFile(inputPath, outputPath, semitones)
}

// transposeStream copies XML tokens from r to w, intercepting <pitch> and
// <fifths> elements.
func (t *Transposer) transposeStream(r io.Reader, w io.Writer, semitones int) error {
	dec := xml.NewDecoder(r)
	enc := xml.NewEncoder(w)

	// Until a key signature is seen, the offset sign decides spelling.
	preferFlats := semitones < 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse score: %w", err)
		}

		if start, ok := tok.(xml.StartElement); ok {
			switch start.Name.Local {
			case "pitch":
				var p pitchElement
				if err := dec.DecodeElement(&p, &start); err != nil {
					return fmt.Errorf("parse pitch: %w", err)
				}
				alter := 0
				if p.Alter != nil {
					alter = *p.Alter
				}
				step, newAlter, octave, err := transposePitch(p.Step, alter, p.Octave, semitones, preferFlats)
				if err != nil {
					return err
				}
				out := pitchElement{Step: step, Octave: octave}
				if newAlter != 0 {
					out.Alter = &newAlter
				}
				if err := enc.EncodeElement(out, start); err != nil {
					return fmt.Errorf("write pitch: %w", err)
				}
				continue
			case "fifths":
				var fifths int
				if err := dec.DecodeElement(&fifths, &start); err != nil {
					return fmt.Errorf("parse key signature: %w", err)
				}
				newFifths := transposeFifths(fifths, semitones)
				preferFlats = newFifths < 0
				if err := encodeSimple(enc, start, strconv.Itoa(newFifths)); err != nil {
					return fmt.Errorf("write key signature: %w", err)
				}
				continue
			}
		}

		if err := enc.EncodeToken(tok); err != nil {
			return fmt.Errorf("write score: %w", err)
		}
	}
	return enc.Flush()
}

// encodeSimple writes <name>value</name> reusing the original start tag.
func encodeSimple(enc *xml.Encoder, start xml.StartElement, value string) error {
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(value)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}
