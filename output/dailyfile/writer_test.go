package dailyfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
	"github.com/c360/aethalometer/metric"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(WriterDeps{Directory: dir})
	require.NoError(t, err)
	return w, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewWriter_RequiresDirectory(t *testing.T) {
	_, err := NewWriter(WriterDeps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestWriter_EmptyLineIsNoop(t *testing.T) {
	w, dir := newTestWriter(t)

	require.NoError(t, w.Process(""))
	assert.Empty(t, listDir(t, dir))
}

func TestWriter_TooFewValues(t *testing.T) {
	w, dir := newTestWriter(t)

	for _, line := range []string{`"01-jan-16"`, `"01-jan-16","10:00"`, "garbage"} {
		err := w.Process(line)
		require.Error(t, err, line)
		assert.True(t, errors.IsCorrupted(err))
		assert.ErrorIs(t, err, errors.ErrTooFewValues)
		assert.Contains(t, err.Error(), "line has less than three values")
	}

	assert.Empty(t, listDir(t, dir))
}

func TestWriter_InvalidDate(t *testing.T) {
	w, dir := newTestWriter(t)

	err := w.Process(`"01-foo-16","10:00",1.5`)
	require.Error(t, err)
	assert.True(t, errors.IsCorrupted(err))
	assert.ErrorIs(t, err, errors.ErrInvalidDate)
	assert.Empty(t, listDir(t, dir))
}

func TestWriter_AppendsLine(t *testing.T) {
	w, dir := newTestWriter(t)
	line := `"15-feb-17","10:32",1234,5678`

	require.NoError(t, w.Process(line))

	assert.Equal(t, []string{"BC150217.csv"}, listDir(t, dir))
	assert.Equal(t, line+"\n", readFile(t, filepath.Join(dir, "BC150217.csv")))
}

func TestWriter_SameDateKeepsCallOrder(t *testing.T) {
	w, dir := newTestWriter(t)
	first := `"01-jan-16","00:00",1`
	second := `"01-Jan-116","00:01",2`

	require.NoError(t, w.Process(first))
	require.NoError(t, w.Process(second))

	assert.Equal(t, first+"\n"+second+"\n", readFile(t, filepath.Join(dir, "BC010116.csv")))
}

func TestWriter_RoutesByDate(t *testing.T) {
	w, dir := newTestWriter(t)

	require.NoError(t, w.Process(`"01-jan-16","00:00",1`))
	require.NoError(t, w.Process(`"02-jan-16","00:00",1`))

	assert.ElementsMatch(t, []string{"BC010116.csv", "BC020116.csv"}, listDir(t, dir))
}

func TestWriter_PaddedDateField(t *testing.T) {
	w, dir := newTestWriter(t)
	padded := `  "01-jan-17"  ,"22:10", 2.5`
	plain := `"01-jan-17","22:10", 2.5`

	require.NoError(t, w.Process(padded))
	require.NoError(t, w.Process(plain))

	assert.Equal(t, []string{"BC010117.csv"}, listDir(t, dir))
	assert.Equal(t, padded+"\n"+plain+"\n", readFile(t, filepath.Join(dir, "BC010117.csv")),
		"the stored line keeps its original whitespace")
}

func TestWriter_DuplicatesPreserved(t *testing.T) {
	w, dir := newTestWriter(t)
	line := `"03-mar-18","12:00",7`

	require.NoError(t, w.Process(line))
	require.NoError(t, w.Process(line))

	assert.Equal(t, line+"\n"+line+"\n", readFile(t, filepath.Join(dir, "BC030318.csv")))
}

func TestWriter_AppendsToExistingFile(t *testing.T) {
	w, dir := newTestWriter(t)
	path := filepath.Join(dir, "BC040418.csv")
	require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0o644))

	require.NoError(t, w.Process(`"04-apr-18","08:00",3`))

	assert.Equal(t, "earlier\n\"04-apr-18\",\"08:00\",3\n", readFile(t, path))
}

func TestWriter_MissingDirectoryIsUnrecoverable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	w, err := NewWriter(WriterDeps{Directory: dir})
	require.NoError(t, err)

	err = w.Process(`"01-jan-16","00:00",1`)
	require.Error(t, err)
	assert.True(t, errors.IsUnrecoverable(err))
	assert.False(t, errors.IsCorrupted(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "BC010116.csv")

	status := w.Health()
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, 1, status.Metrics.ErrorCount)
}

func TestWriter_ReadOnlyDirectoryIsUnrecoverable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}

	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	w, err := NewWriter(WriterDeps{Directory: dir})
	require.NoError(t, err)

	err = w.Process(`"01-jan-16","00:00",1`)
	require.Error(t, err)
	assert.True(t, errors.IsUnrecoverable(err))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestWriter_MetricsAndHealth(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()
	dir := t.TempDir()

	w, err := NewWriter(WriterDeps{Directory: dir, MetricsRegistry: registry, HealthMonitor: monitor})
	require.NoError(t, err)

	line := `"01-jan-16","00:00",1`
	require.NoError(t, w.Process(line))
	require.Error(t, w.Process("bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.linesWritten))
	assert.Equal(t, float64(len(line)+1), testutil.ToFloat64(w.metrics.bytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.linesRejected))
	assert.Equal(t, 0.0, testutil.ToFloat64(w.metrics.writeFailures))

	status := w.Health()
	assert.True(t, status.IsHealthy())
	assert.Equal(t, int64(1), status.Metrics.LinesProcessed)
	assert.False(t, status.Metrics.LastActivity.IsZero())

	published, ok := monitor.Get("storage")
	require.True(t, ok)
	assert.True(t, published.IsHealthy())
}

func TestWriter_DuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	_, err := NewWriter(WriterDeps{Directory: t.TempDir(), MetricsRegistry: registry})
	require.NoError(t, err)

	_, err = NewWriter(WriterDeps{Directory: t.TempDir(), MetricsRegistry: registry})
	assert.Error(t, err)
}
