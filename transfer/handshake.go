// Package transfer implements the direct peer-to-peer file transfer: the
// handshake both halves speak, the upload listener serving the sending half
// and the download worker driving the receiving half.
//
// A transfer connection carries exactly one file:
//
//	receiver: download <name>
//	sender:   size <bytes>
//	receiver: ready
//	sender:   <raw bytes>, then closes the connection
package transfer

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/bytepool"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// ChunkSize is the size of the chunks a file is streamed in.
const ChunkSize = 4096

// Control lines of the handshake.
const (
	downloadVerb = "download"
	sizeVerb     = "size"
	readyMsg     = "ready"
)

// Errors returned by either half of the handshake.
var (
	ErrFileNotFound     = sharing.ClientError("file not found")
	ErrSizeMismatch     = sharing.ClientError("received size does not match declared size")
	ErrMalformedSize    = sharing.ClientError("malformed size line")
	ErrMalformedRequest = sharing.ClientError("malformed download request")
	ErrNotReady         = sharing.ClientError("receiver did not confirm ready")
)

var chunks = bytepool.New(ChunkSize)

func downloadFrame(filename string) string { return downloadVerb + " " + filename }

func sizeFrame(n int64) string { return sizeVerb + " " + strconv.FormatInt(n, 10) }

// parseDownload extracts the file name of a `download <name>` line.
func parseDownload(frame string) (string, error) {
	tokens := strings.Fields(frame)
	if len(tokens) != 2 || tokens[0] != downloadVerb {
		return "", ErrMalformedRequest
	}
	return tokens[1], nil
}

// parseSize extracts the byte count of a `size <n>` line.
func parseSize(frame string) (int64, error) {
	tokens := strings.Fields(frame)
	if len(tokens) != 2 || tokens[0] != sizeVerb {
		return 0, ErrMalformedSize
	}
	n, err := strconv.ParseInt(tokens[1], 10, 64)
	if err != nil || n < 0 {
		return 0, ErrMalformedSize
	}
	return n, nil
}

// localName reports whether name refers to a plain file inside a directory,
// as opposed to a path that would escape it.
func localName(name string) bool {
	if !sharing.ValidFilename(name) || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// openShared opens a plain file named name inside dir.
func openShared(dir, name string) (*os.File, int64, error) {
	if !localName(name) {
		return nil, 0, ErrFileNotFound
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrFileNotFound
		}
		return nil, 0, errors.Wrap(err, "failed to open shared file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrap(err, "failed to stat shared file")
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, ErrFileNotFound
	}
	return f, info.Size(), nil
}

// Send serves the sending half of the handshake on rw for files in dir and
// returns the name of the requested file and the number of payload bytes
// written.
//
// A request for a file that does not exist ends the exchange without a
// reply.
func Send(rw io.ReadWriter, dir string) (string, int64, error) {
	r := sharing.NewFrameReader(rw)
	w := sharing.NewFrameWriter(rw)

	frame, err := r.ReadFrame()
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to read download request")
	}
	name, err := parseDownload(frame)
	if err != nil {
		return "", 0, err
	}

	f, size, err := openShared(dir, name)
	if err != nil {
		return name, 0, err
	}
	defer f.Close()

	if err := w.WriteFrame(sizeFrame(size)); err != nil {
		return name, 0, errors.Wrap(err, "failed to write size")
	}

	frame, err = r.ReadFrame()
	if err != nil {
		return name, 0, errors.Wrap(err, "failed to read ready")
	}
	if frame != readyMsg {
		return name, 0, ErrNotReady
	}

	buf := chunks.Get()
	defer chunks.Put(buf)

	sent, err := io.CopyBuffer(onlyWriter{rw}, onlyReader{f}, *buf)
	if err != nil {
		return name, sent, errors.Wrap(err, "failed to stream file")
	}
	return name, sent, nil
}

// Receive drives the receiving half of the handshake on rw, requesting
// filename and writing the payload to a file of the same base name in dir.
// It returns the path written and the number of bytes received.
//
// A failed transfer leaves whatever was received in place.
func Receive(rw io.ReadWriter, filename, dir string) (string, int64, error) {
	if !localName(filepath.Base(filename)) {
		return "", 0, ErrMalformedRequest
	}

	r := sharing.NewFrameReader(rw)
	w := sharing.NewFrameWriter(rw)

	if err := w.WriteFrame(downloadFrame(filename)); err != nil {
		return "", 0, errors.Wrap(err, "failed to write download request")
	}

	frame, err := r.ReadFrame()
	if err == io.EOF {
		return "", 0, ErrFileNotFound
	}
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to read size")
	}
	size, err := parseSize(frame)
	if err != nil {
		return "", 0, err
	}

	if err := w.WriteFrame(readyMsg); err != nil {
		return "", 0, errors.Wrap(err, "failed to write ready")
	}

	path := filepath.Join(dir, filepath.Base(filename))
	out, err := os.Create(path)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create destination file")
	}
	defer out.Close()

	buf := chunks.Get()
	defer chunks.Put(buf)

	received, err := io.CopyBuffer(onlyWriter{out}, io.LimitReader(rw, size), *buf)
	if err != nil {
		return path, received, errors.Wrap(err, "failed to receive file")
	}
	if received != size {
		return path, received, errors.Wrapf(ErrSizeMismatch, "received %d of %d bytes", received, size)
	}
	return path, received, nil
}

// onlyWriter and onlyReader hide ReaderFrom and WriterTo so io.CopyBuffer
// streams through the pooled chunk.
type onlyWriter struct{ io.Writer }

type onlyReader struct{ io.Reader }
