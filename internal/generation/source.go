package generation

import (
	"io"

	"github.com/cloudwego/eino/schema"
)

// StreamSource adapts an Eino message stream. Each message carries the text
// generated since the previous one.
type StreamSource struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewStreamSource wraps reader.
func NewStreamSource(reader *schema.StreamReader[*schema.Message]) *StreamSource {
	return &StreamSource{reader: reader}
}

// Recv returns the next text chunk.
func (s *StreamSource) Recv() (string, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}

// Close releases the stream.
func (s *StreamSource) Close() {
	s.reader.Close()
}

// SliceSource replays fixed chunks, for offline use and tests.
type SliceSource struct {
	chunks []string
	pos    int
	err    error
}

// NewSliceSource returns a source yielding chunks then io.EOF, or err in
// place of io.EOF when err is non-nil.
func NewSliceSource(chunks []string, err error) *SliceSource {
	return &SliceSource{chunks: chunks, err: err}
}

// Recv returns the next chunk.
func (s *SliceSource) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		s.pos++
		return s.chunks[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Close is a no-op.
func (s *SliceSource) Close() {}
