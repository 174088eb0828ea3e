package rawlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Writer writes rows of varying width as CSV.
type Writer struct {
	w      *csv.Writer
	closer io.Closer
}

// NewWriter wraps w. The caller owns w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

// Create truncates or creates the file at path and returns a Writer that
// closes it on Close.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &Writer{w: csv.NewWriter(f), closer: f}, nil
}

// WriteRow writes a single row.
func (w *Writer) WriteRow(row []string) error {
	return w.w.Write(row)
}

// WriteRows writes rows in order.
func (w *Writer) WriteRows(rows [][]string) error {
	for _, row := range rows {
		if err := w.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data and reports the first write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and, for writers returned by Create, closes the file.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
