package textsynth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// maxLeftover bounds how much undecodable trailing data is kept for diagnosis.
const maxLeftover = 64 << 10

// Stream is a finite, single-use sequence of decoded chunks read from an open
// response. The API separates JSON objects with blank lines; any whitespace
// between objects is accepted and objects may span reads.
//
// Iterate with Next/Current and check Err afterwards, or range over All.
// The stream ends after a chunk marked as final, at end of body, or at the
// first error. Close releases the connection and may be called at any time.
type Stream[T any] struct {
	body    io.ReadCloser
	dec     *json.Decoder
	isFinal func(*T) bool
	prepare func(*T, bool)

	mu      sync.Mutex
	current T
	err     error

	done           atomic.Bool
	closedByCaller atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newStream[T any](body io.ReadCloser, isFinal func(*T) bool, prepare func(*T, bool)) *Stream[T] {
	return &Stream[T]{
		body:    body,
		dec:     json.NewDecoder(body),
		isFinal: isFinal,
		prepare: prepare,
	}
}

func newCompletionStream(body io.ReadCloser, maxTokens *int) *Stream[CompletionChunk] {
	return newStream(body,
		func(c *CompletionChunk) bool { return c.ReachedEnd },
		func(c *CompletionChunk, final bool) { c.settle(maxTokens, final) },
	)
}

// Next decodes the next chunk. It returns false when the stream has ended;
// Err then tells whether it ended cleanly. Next must not be called
// concurrently with itself, but Close may be called from another goroutine
// to unblock it.
func (s *Stream[T]) Next() bool {
	if s.done.Load() {
		return false
	}

	var item T
	if err := s.dec.Decode(&item); err != nil {
		s.done.Store(true)
		if !errors.Is(err, io.EOF) && !s.closedByCaller.Load() {
			err = s.classify(err)
			if f, ok := s.body.(llmclient.StreamFailer); ok {
				f.Fail(err)
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			slog.Debug("textsynth stream ended with error", "error", err)
		}
		_ = s.release()
		return false
	}

	final := s.isFinal != nil && s.isFinal(&item)
	if s.prepare != nil {
		s.prepare(&item, final)
	}
	s.mu.Lock()
	s.current = item
	s.mu.Unlock()
	if final {
		s.done.Store(true)
		_ = s.release()
	}
	return true
}

// Current returns the chunk decoded by the last successful Next.
func (s *Stream[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the error that ended the stream, nil after a clean end or
// after the caller closed it.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying connection. Safe to call more than once,
// before the stream is drained and while another goroutine is blocked in Next.
func (s *Stream[T]) Close() error {
	s.closedByCaller.Store(true)
	s.done.Store(true)
	return s.release()
}

func (s *Stream[T]) release() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// All yields every remaining chunk with a nil error, then a final zero chunk
// with the error if the stream failed. Breaking out of the loop closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Current(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains the stream and returns every chunk in arrival order.
func (s *Stream[T]) Collect() ([]T, error) {
	defer s.Close()
	var out []T
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

// classify maps a decoder failure onto the error taxonomy. Syntax and type
// errors and truncated objects are decode errors carrying the undecodable
// bytes; anything else came from reading the body.
func (s *Stream[T]) classify(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.NewDecodeError("malformed stream chunk: "+err.Error(), s.leftover(), err)
	}
	if e, ok := core.AsError(err); ok {
		return e
	}
	return core.NewNetworkError("stream interrupted: "+err.Error(), err)
}

// leftover returns what the decoder has buffered but not consumed. It never
// reads further from the body, which may be held open by the server.
func (s *Stream[T]) leftover() []byte {
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, io.LimitReader(s.dec.Buffered(), maxLeftover))
	return bytes.TrimSpace(buf.Bytes())
}
