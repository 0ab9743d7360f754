// Package chunker splits document text into overlapping, size-bounded chunks.
//
// Boundaries are chosen recursively: a chunk ends at the last paragraph break
// that fits, else the last line break, else the last space, else it is cut at
// the size limit. Every chunk after the first starts with exactly the final
// overlap characters of its predecessor, so stripping that prefix from each
// chunk and concatenating gives back the input.
package chunker

import (
	"fmt"
	"iter"

	"ragsql/types"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

type Option func(*Splitter)

// WithSeparators replaces the boundary preference order. A hard cut is always
// kept as the last resort.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = s.separators[:0]
		for _, sep := range seps {
			if sep != "" {
				s.separators = append(s.separators, []rune(sep))
			}
		}
	}
}

// NewSplitter validates the size/overlap pair up front; overlap >= size would
// never make progress.
func NewSplitter(size, overlap int, opts ...Option) (*Splitter, error) {
	if size <= 0 {
		return nil, types.NewConfigurationError("chunk_size", fmt.Sprintf("must be positive, got %d", size))
	}
	if overlap < 0 {
		return nil, types.NewConfigurationError("chunk_overlap", fmt.Sprintf("must not be negative, got %d", overlap))
	}
	if overlap >= size {
		return nil, types.NewConfigurationError("chunk_overlap", fmt.Sprintf("%d must be smaller than chunk_size %d", overlap, size))
	}

	s := &Splitter{size: size, overlap: overlap}
	WithSeparators(DefaultSeparators...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns a single-use iterator over the chunks of text.
func (s *Splitter) Split(text, source string) *Iterator {
	return &Iterator{
		splitter: s,
		text:     []rune(text),
		source:   source,
	}
}

// Collect drains Split into a slice.
func (s *Splitter) Collect(text, source string) []types.Chunk {
	var out []types.Chunk
	for c := range s.Split(text, source).All() {
		out = append(out, c)
	}
	return out
}

type Iterator struct {
	splitter *Splitter
	text     []rune
	source   string
	pos      int
	index    int
}

// Next yields chunks in chunk_index order and false once the text is used up.
// An exhausted iterator stays exhausted.
func (it *Iterator) Next() (types.Chunk, bool) {
	if it.pos >= len(it.text) {
		return types.Chunk{}, false
	}

	start := it.pos
	prefix := 0
	if it.index > 0 {
		prefix = it.splitter.overlap
	}

	end := it.cut(start, prefix)
	chunk := types.Chunk{
		Content: string(it.text[start-prefix : end]),
		Metadata: types.ChunkMetadata{
			Source:     it.source,
			ChunkIndex: it.index,
		},
	}
	it.pos = end
	it.index++
	return chunk, true
}

func (it *Iterator) All() iter.Seq[types.Chunk] {
	return func(yield func(types.Chunk) bool) {
		for {
			c, ok := it.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// cut picks where the new content starting at start ends. The chunk must hold
// at least overlap runes so the next chunk's prefix lies entirely inside it.
func (it *Iterator) cut(start, prefix int) int {
	limit := start + it.splitter.size - prefix
	if limit >= len(it.text) {
		return len(it.text)
	}

	minEnd := max(start+1, start-prefix+it.splitter.overlap)
	for _, sep := range it.splitter.separators {
		for end := limit; end >= minEnd; end-- {
			if endsWith(it.text[:end], sep) {
				return end
			}
		}
	}
	return limit
}

func endsWith(text, sep []rune) bool {
	if len(sep) > len(text) {
		return false
	}
	off := len(text) - len(sep)
	for i, r := range sep {
		if text[off+i] != r {
			return false
		}
	}
	return true
}
