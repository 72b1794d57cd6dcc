package sharing

import (
	"bytes"
	"io"
	"sync"
)

// MaxFrameSize is the largest frame read in a single receive call.
const MaxFrameSize = 1024

// FrameReader reads text frames from a stream connection.
//
// Frames are newline-free: each receive call yields one frame. A received
// chunk that contains '\n' is additionally split into several frames, so
// peers that terminate their frames stay separable when TCP coalesces them.
//
// A FrameReader must not be used to read raw payload bytes.
type FrameReader struct {
	r       io.Reader
	buf     []byte
	pending []string
	err     error
}

// NewFrameReader returns a FrameReader reading from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, buf: make([]byte, MaxFrameSize)}
}

// ReadFrame returns the next frame. io.EOF is returned once the remote end
// closed the connection.
func (fr *FrameReader) ReadFrame() (string, error) {
	for len(fr.pending) == 0 {
		if fr.err != nil {
			return "", fr.err
		}

		n, err := fr.r.Read(fr.buf)
		if n > 0 {
			fr.split(fr.buf[:n])
		}
		if err != nil {
			fr.err = err
		} else if n == 0 {
			fr.err = io.EOF
		}
	}

	frame := fr.pending[0]
	fr.pending = fr.pending[1:]
	return frame, nil
}

func (fr *FrameReader) split(chunk []byte) {
	for _, part := range bytes.Split(chunk, []byte{'\n'}) {
		part = bytes.TrimRight(part, "\r")
		if len(part) > 0 {
			fr.pending = append(fr.pending, string(part))
		}
	}
}

// FrameWriter writes frames to a stream connection, one write per frame.
// It is safe for concurrent use.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer

	// Delimit terminates every frame with '\n'.
	Delimit bool
}

// NewFrameWriter returns a FrameWriter writing newline-free frames to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes msg as a single frame.
func (fw *FrameWriter) WriteFrame(msg string) error {
	b := make([]byte, 0, len(msg)+1)
	b = append(b, msg...)
	if fw.Delimit {
		b = append(b, '\n')
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(b)
	return err
}
