package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/emotibit-sync/internal/binlog"
	"github.com/skypro1111/emotibit-sync/internal/config"
)

const rawLog = `1000,1,1,RD,1,100,TL
1010,2,1,TL,1,100,2023-05-01_10-00-00-000
1011,3,2,AK,1,100,2,RD
1500,4,1,HR,1,100,72
5000,5,1,RD,1,100,TL
5010,6,1,TL,1,100,2023-05-01_10-00-04-000
5011,7,2,AK,1,100,6,RD
5500,8,1,HR,1,100,80
garbage
`

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr error
	}{
		{
			name: "input only",
			args: []string{"-input", "raw.csv"},
			want: options{input: "raw.csv"},
		},
		{
			name: "all flags",
			args: []string{"-config", "c.yaml", "-input", "raw.csv", "-output", "out", "-binary"},
			want: options{configPath: "c.yaml", input: "raw.csv", output: "out", binary: true},
		},
		{
			name: "compress implies binary",
			args: []string{"-input", "raw.csv", "-compress"},
			want: options{input: "raw.csv", binary: true, compress: true},
		},
		{
			name:    "missing input",
			args:    []string{"-binary"},
			wantErr: errNoInput,
		},
		{
			name:    "help",
			args:    []string{"-h"},
			wantErr: flag.ErrHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(&options{input: "raw.csv", output: "out", binary: true, compress: true})
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Export.OutputDir)
	assert.True(t, cfg.Export.Binary)
	assert.True(t, cfg.Export.Compress)
	assert.Equal(t, config.Default().Sync, cfg.Sync)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  timezone: \"UTC\"\n  min_sync_packets: 6\n"), 0644))

	cfg, err := loadConfig(&options{configPath: path, input: "raw.csv"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Sync.Timezone)
	assert.Equal(t, 6, cfg.Sync.MinSyncPackets)

	_, err = loadConfig(&options{configPath: filepath.Join(t.TempDir(), "missing.yaml"), input: "raw.csv"})
	assert.Error(t, err)
}

func TestIsArchive(t *testing.T) {
	assert.True(t, isArchive("run.bin"))
	assert.True(t, isArchive("run.bin.zst"))
	assert.False(t, isArchive("run.csv"))
	assert.False(t, isArchive("run.zst"))
}

func TestRunExportsAndInspects(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(input, []byte(rawLog), 0644))
	outDir := filepath.Join(dir, "out")

	opts := &options{input: input, output: outDir, binary: true, compress: true}
	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	cfg.Sync.Timezone = "UTC"

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	require.NoError(t, run(opts, cfg, logger))
	assert.Contains(t, logs.String(), "msg=Summary")
	assert.Contains(t, logs.String(), "synced=true")
	assert.Contains(t, logs.String(), "mean_heart_rate=76")

	for _, name := range []string{"raw_ERROR.csv", "raw_timesyncs.csv", "raw_timeSyncMap.csv", "raw_HR.csv"} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	archive := filepath.Join(outDir, "raw"+binlog.Ext+binlog.CompressedExt)
	require.FileExists(t, archive)

	logs.Reset()
	require.NoError(t, run(&options{input: archive}, cfg, logger))
	assert.Contains(t, logs.String(), "msg=\"Archive read\"")
	assert.Contains(t, logs.String(), "packets=8")
	assert.Contains(t, logs.String(), "corrupt_frames=0")
}

func TestRunMissingInput(t *testing.T) {
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(&options{input: filepath.Join(t.TempDir(), "absent.csv")}, cfg, logger)
	assert.Error(t, err)
}
