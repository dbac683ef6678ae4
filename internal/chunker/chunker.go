// Package chunker splits extracted document text into overlapping chunks,
// preferring paragraph, line and word boundaries over hard cuts.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var ErrInvalidConfig = errors.New("invalid chunker config")

// Separators are tried in order; the empty separator falls back to single characters.
var Separators = []string{"\n\n", "\n", " ", ""}

type Splitter struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d with chunk size %d", ErrInvalidConfig, overlap, size)
	}
	return &Splitter{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(Separators),
		),
	}, nil
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the non-blank chunks of text in document order.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text failed: %w", err)
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
