package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"RegimeDesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterWritesUniqueReports(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(repository.NewLayout(dir), "v0.1")
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Crash{
		At:         at,
		Type:       "*fs.PathError",
		Message:    "open event_spine.jsonl: permission denied",
		Stack:      []byte("goroutine 1 [running]:\nmain.main()"),
		LastTickID: 42,
		Assets:     []string{"BTCUSDT", "ETHUSDT"},
	}

	first, err := r.Write(context.Background(), c)
	require.NoError(t, err)
	second, err := r.Write(context.Background(), c)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, dir, filepath.Dir(first))

	body, err := os.ReadFile(first)
	require.NoError(t, err)
	s := string(body)
	assert.Contains(t, s, "type:         *fs.PathError")
	assert.Contains(t, s, "last_tick_id: 42")
	assert.Contains(t, s, "assets:       BTCUSDT,ETHUSDT")
	assert.Contains(t, s, "main.main()")
	assert.Contains(t, s, "[resources]")
}

func TestReporterCapturesStackWhenMissing(t *testing.T) {
	r := NewReporter(repository.NewLayout(t.TempDir()), "v0.1")
	path, err := r.Write(context.Background(), Crash{At: time.Now(), Type: "panic", Message: "boom"})
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "TestReporterCapturesStackWhenMissing")
}

func TestReserveSkipsExistingReports(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(repository.NewLayout(dir), "v0.1")
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := r.Reserve(at)
	require.NoError(t, err)
	_, statErr := os.Stat(first)
	assert.True(t, os.IsNotExist(statErr), "reserve does not create the file")

	require.NoError(t, r.WriteAt(context.Background(), first, Crash{At: at, Type: "panic", Message: "boom"}))
	second, err := r.Reserve(at)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, ".1.txt", second[len(second)-6:])
}
