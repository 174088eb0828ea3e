package binlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

const (
	// Ext is the file suffix of archives.
	Ext = ".bin"
	// CompressedExt is appended to Ext for zstd-compressed archives.
	CompressedExt = ".zst"
)

const frameDelimiter = 0x00

// Writer appends framed packets to an archive.
type Writer struct {
	w       *bufio.Writer
	zw      *zstd.Encoder
	closer  io.Closer
	written int
}

// NewWriter returns a Writer on w. When compress is set the stream is zstd
// encoded and Close must be called to finish it.
func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	aw := &Writer{}
	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		aw.zw = zw
		w = zw
	}
	aw.w = bufio.NewWriter(w)
	return aw, nil
}

// Create creates the archive at path. Paths ending in CompressedExt are
// compressed.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive %s: %w", path, err)
	}

	w, err := NewWriter(f, strings.HasSuffix(path, CompressedExt))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write encodes and frames p.
func (w *Writer) Write(p protocol.Packet) error {
	msg, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(cobsEncode(msg)); err != nil {
		return err
	}
	if err := w.w.WriteByte(frameDelimiter); err != nil {
		return err
	}
	w.written++
	return nil
}

// Written returns the number of packets written so far.
func (w *Writer) Written() int {
	return w.written
}

// Close flushes buffered frames, finishes compression and closes the file
// opened by Create.
func (w *Writer) Close() error {
	err := w.w.Flush()
	if w.zw != nil {
		if zerr := w.zw.Close(); err == nil {
			err = zerr
		}
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Archive is the content read back from an archive.
type Archive struct {
	Packets []protocol.Packet
	Corrupt int // frames that failed to decode and were skipped
}

// ReadAll reads every frame from r. Damaged frames are counted and skipped.
func ReadAll(r io.Reader, compressed bool) (Archive, error) {
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return Archive{}, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to read archive: %w", err)
	}

	var a Archive
	for _, frame := range bytes.Split(data, []byte{frameDelimiter}) {
		if len(frame) == 0 {
			continue
		}
		msg, err := cobsDecode(frame)
		if err != nil {
			a.Corrupt++
			continue
		}
		p, err := Decode(msg)
		if err != nil {
			a.Corrupt++
			continue
		}
		a.Packets = append(a.Packets, p)
	}
	return a, nil
}

// ReadFile reads the archive at path, decompressing when the path ends in
// CompressedExt.
func ReadFile(path string) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	return ReadAll(f, strings.HasSuffix(path, CompressedExt))
}
