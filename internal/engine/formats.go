package engine

import (
	"path/filepath"
	"strings"
)

// FormatKind classifies a discovered engine output file.
type FormatKind int

const (
	// FormatMusicXML is the plain single-file XML score format.
	FormatMusicXML FormatKind = iota
	// FormatCompressedMXL is the zip-packaged single-file score variant.
	FormatCompressedMXL
	// FormatPDF is the print-ready rendered document.
	FormatPDF
)

// Candidate pairs an output file extension with its format, checked in
// priority order during output discovery.
type Candidate struct {
	Extension string
	Kind      FormatKind
}

// scoreCandidates is the probe order for recognition output. The compressed
// container comes first because the recognition engine prefers emitting it.
var scoreCandidates = []Candidate{
	{Extension: ".mxl", Kind: FormatCompressedMXL},
	{Extension: ".musicxml", Kind: FormatMusicXML},
	{Extension: ".xml", Kind: FormatMusicXML},
}

// pdfCandidates is the probe order for rendering output.
var pdfCandidates = []Candidate{
	{Extension: ".pdf", Kind: FormatPDF},
}

// matchCandidate returns the candidate whose extension matches the file name.
func matchCandidate(name string, candidates []Candidate) (Candidate, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, c := range candidates {
		if ext == c.Extension {
			return c, true
		}
	}
	return Candidate{}, false
}
