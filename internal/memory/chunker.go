package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// ChunkSpec controls how documents are split for indexing.
type ChunkSpec struct {
	// Size is the target chunk length in characters.
	Size int
	// Overlap is how many trailing characters of a chunk are repeated at
	// the start of the next one, so no statement is lost at a boundary.
	Overlap int
}

// DefaultChunkSpec mirrors the ingestion defaults.
var DefaultChunkSpec = ChunkSpec{Size: 1000, Overlap: 200}

// Validate checks the size/overlap relationship.
func (s ChunkSpec) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrIngestion, s.Size)
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size), got %d", ErrIngestion, s.Overlap)
	}
	return nil
}

var (
	paragraphSep = regexp.MustCompile(`\n\n+`)
	sentenceEnd  = regexp.MustCompile(`([.!?])\s+`)
)

// Chunk splits text into overlapping chunks of roughly spec.Size
// characters. It is deterministic and pure.
//
// Splitting prefers the largest unit that fits: paragraphs first, then
// sentences for paragraphs longer than spec.Size, then hard character
// cuts for a single sentence that still does not fit. The overlap is
// taken from the previous chunk's trailing text rather than from source
// offsets, so its exact length varies with unit boundaries.
func Chunk(text string, spec ChunkSpec) ([]string, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var units []string
	for _, para := range paragraphSep.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= spec.Size {
			units = append(units, para)
			continue
		}
		units = append(units, splitOversize(para, spec.Size)...)
	}

	var chunks []string
	var current string
	for _, unit := range units {
		switch {
		case current == "":
			current = unit
		case len(current)+len(unit) > spec.Size:
			chunks = append(chunks, strings.TrimSpace(current))
			if spec.Overlap > 0 {
				current = tail(chunks[len(chunks)-1], spec.Overlap) + "\n\n" + unit
			} else {
				current = unit
			}
		default:
			current += "\n\n" + unit
		}
	}
	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks, nil
}

// splitOversize breaks a paragraph longer than size into pieces of at
// most size characters, packing whole sentences where possible.
func splitOversize(para string, size int) []string {
	var pieces []string
	var current string
	for _, sentence := range splitSentences(para) {
		if len(sentence) > size {
			if current != "" {
				pieces = append(pieces, current)
				current = ""
			}
			pieces = append(pieces, hardSplit(sentence, size)...)
			continue
		}
		switch {
		case current == "":
			current = sentence
		case len(current)+1+len(sentence) > size:
			pieces = append(pieces, current)
			current = sentence
		default:
			current += " " + sentence
		}
	}
	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

// splitSentences splits on terminal punctuation followed by whitespace,
// keeping the punctuation with the sentence.
func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// hardSplit cuts text into size-length pieces on rune boundaries.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
