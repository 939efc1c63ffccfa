package datalog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morse-wifi/dcsd/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logx.Logger { return logx.NewLogger("error", "test") }

func TestCSVSinkRotatesIntoTimestampedDirectory(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	sink, err := newCSVSinkAt(root, now, testLogger())
	require.NoError(t, err)
	defer sink.Close()

	expected := filepath.Join(root, "2024_03_01_12_30_45", "dcs.log")
	_, err = os.Stat(expected)
	assert.NoError(t, err)
}

func TestCSVSinkWritesHeaderAndRows(t *testing.T) {
	root := t.TempDir()
	sink, err := newCSVSinkAt(root, time.Now(), testLogger())
	require.NoError(t, err)

	require.NoError(t, sink.Write(Record{
		Time:                   time.Now(),
		FrequencyKHz:           900_000,
		BandwidthMHz:           1,
		ChannelS1G:             1,
		Metric:                 80,
		AccumulatedScore:       80,
		RoundsAsBestForChannel: 1,
		CurrentChannelKHz:      900_000,
	}))
	require.NoError(t, sink.Close())

	f, err := os.Open(sink.file.Name())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "900000", rows[1][1])
	assert.Equal(t, "80", rows[1][4])
}

type fakeSink struct {
	writes int
	closed bool
	failOn int
}

func (f *fakeSink) Write(r Record) error {
	f.writes++
	if f.writes == f.failOn {
		return assert.AnError
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiSinkFansOutAndToleratesOneSinkFailing(t *testing.T) {
	good := &fakeSink{}
	bad := &fakeSink{failOn: 1}

	m := NewMultiSink(testLogger(), good, bad, nil)
	err := m.Write(Record{})
	assert.NoError(t, err)
	assert.Equal(t, 1, good.writes)
	assert.Equal(t, 1, bad.writes)

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}
