package rawlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

// Record is one line of a raw log. Err is set when the line could not be
// split into fields.
type Record struct {
	Line   int
	Fields []string
	Err    error
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	// Free-text payloads (UN, EM, RB) may carry quotes inside unquoted fields
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

// ReadRecords splits r into records. Malformed lines are returned as records
// with Err set; only I/O failures abort the read.
func ReadRecords(r io.Reader) ([]Record, error) {
	cr := newReader(r)

	var records []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}

		var pe *csv.ParseError
		if errors.As(err, &pe) {
			records = append(records, Record{Line: pe.StartLine, Err: err})
			continue
		}
		if err != nil {
			return records, fmt.Errorf("failed to read records: %w", err)
		}

		line, _ := cr.FieldPos(0)
		records = append(records, Record{Line: line, Fields: fields})
	}
}

// Decode reads r and decodes every record, in source order.
func Decode(r io.Reader) ([]protocol.Result, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}

	results := make([]protocol.Result, len(records))
	for i, rec := range records {
		if rec.Err != nil {
			results[i] = protocol.Result{
				Line: rec.Line,
				Err:  &protocol.DecodeError{Line: rec.Line, Err: rec.Err},
			}
			continue
		}
		results[i] = protocol.DecodeRecordAt(rec.Line, rec.Fields)
	}
	return results, nil
}

// DecodeFile decodes the raw log at path.
func DecodeFile(path string) ([]protocol.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw log %s: %w", path, err)
	}
	defer f.Close()

	results, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return results, nil
}

// Split partitions results into decoded packets and failures, keeping order.
func Split(results []protocol.Result) ([]protocol.Packet, []protocol.Result) {
	var (
		packets  []protocol.Packet
		failures []protocol.Result
	)
	for _, r := range results {
		if r.OK() {
			packets = append(packets, r.Packet)
		} else {
			failures = append(failures, r)
		}
	}
	return packets, failures
}
