package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skypro1111/emotibit-sync/internal/binlog"
	"github.com/skypro1111/emotibit-sync/internal/metrics"
	"github.com/skypro1111/emotibit-sync/internal/protocol"
	"github.com/skypro1111/emotibit-sync/internal/rawlog"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

// Options selects what an Exporter writes.
type Options struct {
	OutputDir      string // defaults to the source file's directory
	WriteErrors    bool
	WriteTimeSyncs bool
	Binary         bool
	Compress       bool
}

// Exporter writes the export files for decoded raw logs.
type Exporter struct {
	opts    Options
	builder *timesync.Builder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Exporter. m may be nil.
func New(opts Options, builder *timesync.Builder, logger *slog.Logger, m *metrics.Metrics) *Exporter {
	if builder == nil {
		builder = timesync.NewBuilder(timesync.Options{})
	}
	return &Exporter{
		opts:    opts,
		builder: builder,
		logger:  logger,
		metrics: m,
	}
}

// ExportFile decodes the raw log at path and exports it.
func (e *Exporter) ExportFile(path string) (Summary, error) {
	results, err := rawlog.DecodeFile(path)
	if err != nil {
		return Summary{}, err
	}
	return e.Export(path, results)
}

// Export writes the files for results, which were decoded from source.
// Sync failures are recorded in the Summary and in the sync files; only
// I/O failures are returned as errors.
func (e *Exporter) Export(source string, results []protocol.Result) (Summary, error) {
	summary := Summarize(source, results)
	stem, dir := e.stem(source)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return summary, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	out := func(suffix string) string {
		return filepath.Join(dir, stem+suffix)
	}

	if e.opts.WriteErrors {
		path := out("_ERROR.csv")
		if err := writeErrors(path, results); err != nil {
			return summary, err
		}
		summary.Files = append(summary.Files, path)
	}

	triples, syncsErr := e.builder.FindSyncs(results)
	summary.Triples = len(triples)
	if e.metrics != nil {
		for _, t := range triples {
			e.metrics.RecordSyncRoundTrip(t.RoundTrip)
		}
	}
	if e.opts.WriteTimeSyncs {
		path := out("_timesyncs.csv")
		rows := [][]string{{errorText(syncsErr)}}
		if syncsErr == nil {
			rows = append([][]string{timesync.TripleHeader}, tripleRows(triples)...)
		}
		if err := writeCSV(path, rows); err != nil {
			return summary, err
		}
		summary.Files = append(summary.Files, path)
	}

	syncMap, syncErr := e.builder.GenerateSyncMap(results)
	if syncErr == nil {
		summary.SyncMap = &syncMap
	} else {
		summary.SyncErr = syncErr
	}
	if e.metrics != nil {
		e.metrics.RecordSyncMap(syncErr == nil)
	}

	path := out("_timeSyncMap.csv")
	rows := [][]string{{errorText(syncErr)}}
	if syncErr == nil {
		rows = [][]string{timesync.SyncMapHeader, syncMap.Row()}
	}
	if err := writeCSV(path, rows); err != nil {
		return summary, err
	}
	summary.Files = append(summary.Files, path)

	packets := timesync.Project(results, summary.SyncMap)
	byTag := make(map[protocol.TypeTag][][]string)
	for _, p := range packets {
		byTag[p.TypeTag()] = append(byTag[p.TypeTag()], p.Rows()...)
	}
	for _, tag := range summary.Tags() {
		path := out("_" + string(tag) + ".csv")
		rows := append([][]string{protocol.Header(tag)}, byTag[tag]...)
		if err := writeCSV(path, rows); err != nil {
			return summary, err
		}
		summary.Files = append(summary.Files, path)
	}

	if e.opts.Binary {
		path := out(binlog.Ext)
		if e.opts.Compress {
			path += binlog.CompressedExt
		}
		if err := writeArchive(path, packets); err != nil {
			return summary, err
		}
		summary.Archive = path
	}

	e.logger.Info("Export completed",
		slog.String("run_id", summary.RunID.String()),
		slog.String("source", source),
		slog.Int("records", summary.Records),
		slog.Int("packets", summary.Packets),
		slog.Int("errors", summary.Errors),
		slog.Int("time_syncs", summary.Triples),
		slog.Bool("synced", summary.Synced()),
		slog.Int("files", len(summary.Files)),
	)
	if syncErr != nil {
		e.logger.Warn("Host timestamps not injected",
			slog.String("source", source),
			slog.String("error", syncErr.Error()),
		)
	}

	return summary, nil
}

// stem returns the base name used for output files and the directory they
// are written to.
func (e *Exporter) stem(source string) (string, string) {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "default"
	}

	dir := e.opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return stem, dir
}

func tripleRows(triples []timesync.Triple) [][]string {
	rows := make([][]string, len(triples))
	for i, t := range triples {
		rows[i] = t.Row()
	}
	return rows
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeErrors(path string, results []protocol.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	_, failures := rawlog.Split(results)
	for _, r := range failures {
		if _, err := fmt.Fprintln(f, r.Err); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

func writeCSV(path string, rows [][]string) error {
	w, err := rawlog.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteRows(rows); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeArchive(path string, packets []protocol.Packet) error {
	w, err := binlog.Create(path)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
