package rawlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

const sample = `1126349,49106,3,PI,1,100,156593,156471,156372
1126360,49107,1,HR,1,100,72

1126370,49108,1,ZZ,1,100,1
1126380,49109,2,a"b,1,100,1
1126390,49110,2,EA,1,100,0.25,0.5
`

func TestReadRecords(t *testing.T) {
	records, err := ReadRecords(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, 1, records[0].Line)
	assert.Len(t, records[0].Fields, 9)
	assert.Equal(t, 2, records[1].Line)
	assert.Equal(t, 4, records[2].Line, "blank lines are skipped but still counted")
	assert.Equal(t, 5, records[3].Line)
	assert.NoError(t, records[3].Err)
	assert.Equal(t, `a"b`, records[3].Fields[3])
	assert.Equal(t, 6, records[4].Line)
	assert.NoError(t, records[4].Err)
}

func TestReadRecordsQuotesInText(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		fields []string
	}{
		{
			name:   "quoted word in user note",
			input:  `1000,5,1,UN,1,100,he said "hi" loudly`,
			fields: []string{"1000", "5", "1", "UN", "1", "100", `he said "hi" loudly`},
		},
		{
			name:   "trailing quote",
			input:  `1000,6,1,EM,1,100,5"`,
			fields: []string{"1000", "6", "1", "EM", "1", "100", `5"`},
		},
		{
			name:   "quoted field with comma",
			input:  `1000,7,1,RB,1,100,"a,b"`,
			fields: []string{"1000", "7", "1", "RB", "1", "100", "a,b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ReadRecords(strings.NewReader(tt.input + "\n"))
			require.NoError(t, err)
			require.Len(t, records, 1)
			require.NoError(t, records[0].Err)
			assert.Equal(t, tt.fields, records[0].Fields)
		})
	}
}

func TestDecodeUserNoteWithQuotes(t *testing.T) {
	results, err := Decode(strings.NewReader(`1000,5,1,UN,1,100,he said "hi" loudly` + "\n"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].OK(), "%v", results[0].Err)
	assert.Equal(t, protocol.Strings{Tag: protocol.TagUserNote, Values: []string{`he said "hi" loudly`}}, results[0].Packet.Payload)
}

func TestDecode(t *testing.T) {
	results, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.True(t, results[0].OK())
	assert.Equal(t, protocol.TagPPGInfrared, results[0].Packet.TypeTag())
	assert.True(t, results[1].OK())

	assert.False(t, results[2].OK())
	assert.ErrorIs(t, results[2].Err, protocol.ErrUnknownTypeTag)
	assert.Contains(t, results[2].Err.Error(), "line 4")

	assert.False(t, results[3].OK())
	var de *protocol.DecodeError
	require.ErrorAs(t, results[3].Err, &de)
	assert.Equal(t, 5, de.Line)

	require.True(t, results[4].OK())
	assert.Equal(t, protocol.Floats{Tag: protocol.TagEDA, Values: []float32{0.25, 0.5}}, results[4].Packet.Payload)
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	results, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open raw log")
}

func TestSplit(t *testing.T) {
	results, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	packets, failures := Split(results)
	require.Len(t, packets, 3)
	require.Len(t, failures, 2)
	assert.Equal(t, uint32(49106), packets[0].SequenceID)
	assert.Equal(t, uint32(49110), packets[2].SequenceID)
	assert.Equal(t, 4, failures[0].Line)
	assert.Equal(t, 5, failures[1].Line)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteRow([]string{"a", "b"}))
	require.NoError(t, w.WriteRows([][]string{{"1"}, {"2", "3,4", "5"}}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "a,b\n1\n2,\"3,4\",5\n", buf.String())
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteRow([]string{"x", "y"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))
}
