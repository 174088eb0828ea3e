package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skypro1111/emotibit-sync/internal/binlog"
	"github.com/skypro1111/emotibit-sync/internal/config"
	"github.com/skypro1111/emotibit-sync/internal/export"
	"github.com/skypro1111/emotibit-sync/internal/logging"
	"github.com/skypro1111/emotibit-sync/internal/protocol"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

// options holds the parsed command line
type options struct {
	configPath string
	input      string
	output     string
	binary     bool
	compress   bool
}

var errNoInput = errors.New("-input is required")

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	if err := run(opts, cfg, logger); err != nil {
		logger.Error("Export failed",
			slog.String("input", opts.input),
			slog.String("error", err.Error()),
		)
		logCloser.Close()
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("emotibit-export", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (defaults are used when empty)")
	fs.StringVar(&opts.input, "input", "", "Raw EmotiBit log to export, or a "+binlog.Ext+" archive to inspect")
	fs.StringVar(&opts.output, "output", "", "Output directory (overrides export.output_dir)")
	fs.BoolVar(&opts.binary, "binary", false, "Also write a binary archive of the decoded packets")
	fs.BoolVar(&opts.compress, "compress", false, "Compress the binary archive with zstd (implies -binary)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.input == "" {
		fs.Usage()
		return nil, errNoInput
	}
	if opts.compress {
		opts.binary = true
	}
	return opts, nil
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	if opts.output != "" {
		cfg.Export.OutputDir = opts.output
	}
	if opts.binary {
		cfg.Export.Binary = true
	}
	if opts.compress {
		cfg.Export.Compress = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func isArchive(path string) bool {
	return strings.HasSuffix(path, binlog.Ext) || strings.HasSuffix(path, binlog.Ext+binlog.CompressedExt)
}

func run(opts *options, cfg *config.Config, logger *slog.Logger) error {
	if isArchive(opts.input) {
		return inspect(opts.input, logger)
	}

	loc, err := cfg.Sync.GetLocation()
	if err != nil {
		return err
	}
	builder := timesync.NewBuilder(timesync.Options{
		MinSyncPackets: cfg.Sync.MinSyncPackets,
		Location:       loc,
	})

	exporter := export.New(export.Options{
		OutputDir:      cfg.Export.OutputDir,
		WriteErrors:    cfg.Export.WriteErrors,
		WriteTimeSyncs: cfg.Export.WriteTimeSyncs,
		Binary:         cfg.Export.Binary,
		Compress:       cfg.Export.Compress,
	}, builder, logger, nil)

	summary, err := exporter.ExportFile(opts.input)
	if err != nil {
		return err
	}
	logSummary(logger, summary)
	return nil
}

func logSummary(logger *slog.Logger, s export.Summary) {
	attrs := []any{
		slog.String("run_id", s.RunID.String()),
		slog.String("source", s.Source),
		slog.Int("records", s.Records),
		slog.Int("packets", s.Packets),
		slog.Int("errors", s.Errors),
		slog.Int("time_syncs", s.Triples),
		slog.Bool("synced", s.Synced()),
		slog.Int("files", len(s.Files)),
	}
	if s.SyncErr != nil {
		attrs = append(attrs, slog.String("sync_error", s.SyncErr.Error()))
	}
	if s.HeartRateSamples > 0 {
		attrs = append(attrs,
			slog.Int("heart_rate_samples", s.HeartRateSamples),
			slog.Float64("mean_heart_rate", s.MeanHeartRate),
		)
	}
	if s.Archive != "" {
		attrs = append(attrs, slog.String("archive", s.Archive))
	}
	logger.Info("Summary", attrs...)

	for _, tag := range s.Tags() {
		logger.Debug("Packets by tag",
			slog.String("type_tag", string(tag)),
			slog.Int("count", s.PacketsByTag[tag]),
		)
	}
}

// inspect reads a binary archive back and logs what it holds.
func inspect(path string, logger *slog.Logger) error {
	archive, err := binlog.ReadFile(path)
	if err != nil {
		return err
	}

	byTag := make(map[protocol.TypeTag]int)
	for _, p := range archive.Packets {
		byTag[p.TypeTag()]++
	}

	logger.Info("Archive read",
		slog.String("archive", path),
		slog.Int("packets", len(archive.Packets)),
		slog.Int("corrupt_frames", archive.Corrupt),
		slog.Int("type_tags", len(byTag)),
	)
	for tag, n := range byTag {
		logger.Debug("Packets by tag",
			slog.String("type_tag", string(tag)),
			slog.Int("count", n),
		)
	}
	return nil
}
