package chatcompletions

import (
	"iter"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
)

// Stream is an open streamed completion. Chunks may be ranged over once;
// Close releases the backend connection and is safe to call repeatedly.
type Stream struct {
	chunks iter.Seq2[*Chunk, error]
	close  func() error
	once   sync.Once
	err    error
}

// NewStream wraps a chunk sequence. closeFn may be nil.
func NewStream(chunks iter.Seq2[*Chunk, error], closeFn func() error) *Stream {
	return &Stream{chunks: chunks, close: closeFn}
}

// Chunks yields backend deltas in arrival order. Errors are classified
// and terminate the sequence.
func (s *Stream) Chunks() iter.Seq2[*Chunk, error] {
	return s.chunks
}

func (s *Stream) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.err = s.close()
		}
	})
	return s.err
}

func newSSEStream(sse *ssestream.Stream[Chunk]) *Stream {
	chunks := func(yield func(*Chunk, error) bool) {
		for sse.Next() {
			chunk := sse.Current()
			if !yield(&chunk, nil) {
				return
			}
		}
		if err := sse.Err(); err != nil {
			yield(nil, Classify(err))
		}
	}
	return NewStream(chunks, sse.Close)
}
