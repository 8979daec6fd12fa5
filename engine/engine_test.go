package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/f12mqtt/engine"
	"github.com/heytcass/f12mqtt/playback"
)

func writeRecording(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subscribe.json"), []byte(`{"Timestamp":"2026-03-01T12:00:00Z"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "live.jsonl"), []byte(
		`{"ts":"2026-03-01T12:00:01Z","topic":"LapCount","data":{"CurrentLap":1}}`+"\n"+
			`{"ts":"2026-03-01T12:00:02Z","topic":"LapCount","data":{"CurrentLap":2}}`+"\n",
	), 0o644))
}

func TestNewInReplayModeBuildsControllerAndWebServer(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir)

	e, err := engine.New(context.Background(), engine.Options{
		Mode:         engine.ModeReplay,
		RecordingDir: dir,
	})
	require.NoError(t, err)
	require.NotNil(t, e.Controller())
	assert.Equal(t, playback.StatusStopped, e.Controller().Status())
}

func TestNewInReplayModeRequiresRecordingDir(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Options{Mode: engine.ModeReplay})
	assert.Error(t, err)
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Options{Mode: "bogus"})
	assert.Error(t, err)
}

func TestLoadReplayPopulatesControllerFromDataSource(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir)

	e, err := engine.New(context.Background(), engine.Options{
		Mode:         engine.ModeReplay,
		RecordingDir: dir,
	})
	require.NoError(t, err)

	require.NoError(t, e.LoadReplay(context.Background(), 1))
	assert.Equal(t, playback.StatusLoaded, e.Controller().Status())
}

func TestLoadReplayErrorsWhenArchiveIsUnreachable(t *testing.T) {
	e, err := engine.New(context.Background(), engine.Options{Mode: engine.ModeArchive})
	require.NoError(t, err)
	// No archive server reachable, but LoadReplay should fail fast on the
	// unreachable archive rather than hang.
	err = e.LoadReplay(context.Background(), 1)
	assert.Error(t, err)
}

func writeLiveConfig(t *testing.T, recordingsDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"feedURL: wss://example-upstream.invalid/feed\n"+
			"recordingsDir: "+recordingsDir+"\n"+
			"metricsBackend: noop\n",
	), 0o644))
	return path
}

func TestNewInLiveModeRequiresFeedURL(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Options{Mode: engine.ModeLive})
	assert.Error(t, err, "ModeLive must reject an empty FeedURL rather than dial an empty address")
}

func TestNewInLiveModeStartsRecorderAndAdapter(t *testing.T) {
	recordingsDir := t.TempDir()
	cfgPath := writeLiveConfig(t, recordingsDir)

	e, err := engine.New(context.Background(), engine.Options{
		Mode:       engine.ModeLive,
		ConfigPath: cfgPath,
	})
	require.NoError(t, err)
	defer e.Shutdown()

	// wireLive starts the recorder eagerly (spec.md §4.2), so its session
	// directory and metadata.json must exist without Run ever being called.
	matches, err := filepath.Glob(filepath.Join(recordingsDir, "*", "metadata.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "expected wireLive to have started exactly one recording session")
}

func TestShutdownIsSafeWithoutRun(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir)
	e, err := engine.New(context.Background(), engine.Options{
		Mode:         engine.ModeReplay,
		RecordingDir: dir,
	})
	require.NoError(t, err)
	assert.NoError(t, e.Shutdown())
}
