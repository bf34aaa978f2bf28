package dicomcache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/dicom"
)

func sampleDatasets(sop string) []*dicom.Dataset {
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VRUI, sop)
	ds.SetString(dicom.TagPatientID, dicom.VRCS, "P1")
	return []*dicom.Dataset{ds}
}

func TestSeriesKeyString(t *testing.T) {
	k := seriesKey{StudyUID: "1.2", SeriesUID: "1.2.3"}
	require.Equal(t, "1.2/1.2.3", k.String())
}

func TestEnsureSeriesCachedFetchesOnMissAndMemoHitsAfter(t *testing.T) {
	c := New(Config{RootDir: t.TempDir(), MemoryTTL: time.Hour, MemoryCapacity: 10})

	calls := 0
	fetch := func(ctx context.Context, studyUID, seriesUID string) ([]*dicom.Dataset, error) {
		calls++
		return sampleDatasets("SOP1"), nil
	}

	e1, err := c.EnsureSeriesCached(context.Background(), "STUDY1", "SERIES1", fetch)
	require.NoError(t, err)
	require.Len(t, e1.Instances, 1)
	require.Equal(t, 1, calls)

	e2, err := c.EnsureSeriesCached(context.Background(), "STUDY1", "SERIES1", fetch)
	require.NoError(t, err)
	require.Same(t, e1, e2)
	require.Equal(t, 1, calls, "second call must be served from memory without invoking fetch again")

	c.Shutdown()
}

func TestEnsureSeriesCachedPropagatesFetchError(t *testing.T) {
	c := New(Config{RootDir: t.TempDir(), MemoryTTL: time.Hour, MemoryCapacity: 10})

	wantErr := require.Error
	_, err := c.EnsureSeriesCached(context.Background(), "STUDY1", "SERIES1", func(ctx context.Context, studyUID, seriesUID string) ([]*dicom.Dataset, error) {
		return nil, context.DeadlineExceeded
	})
	wantErr(t, err)
	c.Shutdown()
}

func TestReadInstanceFromDiskReturnsNotFoundWhenAbsent(t *testing.T) {
	c := New(Config{RootDir: t.TempDir()})
	_, err := c.ReadInstanceFromDisk("STUDY1", "SERIES1", "SOP1")
	require.Error(t, err)
}

func TestEvictExpiredOnEmptyRootIsNoop(t *testing.T) {
	c := New(Config{RootDir: t.TempDir(), DiskTTL: time.Hour})
	require.NoError(t, c.EvictExpired())
}

func TestEvictExpiredOnMissingRootIsNoop(t *testing.T) {
	c := New(Config{RootDir: t.TempDir() + "/does-not-exist", DiskTTL: time.Hour})
	require.NoError(t, c.EvictExpired())
}

func TestEvictBySizeOnEmptyRootIsNoop(t *testing.T) {
	c := New(Config{RootDir: t.TempDir(), MaxSizeBytes: 1 << 20})
	require.NoError(t, c.EvictBySize())
}

func TestFormatCachedAtProducesFloatUnixTimestamp(t *testing.T) {
	ts := time.Unix(1700000000, 500000000)
	body := formatCachedAt(ts)

	f, err := strconv.ParseFloat(body, 64)
	require.NoError(t, err)
	require.InDelta(t, 1700000000.5, f, 1e-6)
}

func TestParseCachedAtRoundTripsFormatCachedAt(t *testing.T) {
	ts := time.Unix(1700000000, 250000000)
	parsed, err := parseCachedAt(formatCachedAt(ts))
	require.NoError(t, err)
	require.WithinDuration(t, ts, parsed, time.Microsecond)
}

func TestParseCachedAtRejectsNonNumericBody(t *testing.T) {
	_, err := parseCachedAt("2026-07-30T00:00:00Z")
	require.Error(t, err)
}

func TestBackgroundDiskWriteMarkerIsFloatUnixTimestamp(t *testing.T) {
	root := t.TempDir()
	c := New(Config{RootDir: root, MemoryTTL: time.Hour, MemoryCapacity: 10})

	_, err := c.EnsureSeriesCached(context.Background(), "STUDY1", "SERIES1", func(ctx context.Context, studyUID, seriesUID string) ([]*dicom.Dataset, error) {
		return sampleDatasets("SOP1"), nil
	})
	require.NoError(t, err)
	c.Shutdown() // waits for the background disk write to finish

	marker := filepath.Join(root, "STUDY1", "SERIES1", cachedAtMarker)
	raw, err := os.ReadFile(marker)
	require.NoError(t, err)

	_, err = strconv.ParseFloat(string(raw), 64)
	require.NoError(t, err, "marker body must be a float unix timestamp, not an RFC3339 string")
}
