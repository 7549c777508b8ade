package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	cfg := DefaultConfig()
	cfg.File = path

	l, err := New(cfg)
	require.NoError(t, err)
	l.Named("engine").Info("Settlement committed")
	_ = Sync(l)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Settlement committed"`)
	assert.Contains(t, string(data), `"logger":"engine"`)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.File = ""
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg.Level = "info"
	cfg.Format = "xml"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.Format = "pretty"
	_, err = New(cfg)
	assert.NoError(t, err)
}

func TestCSVSinkConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "settlements.csv")
	header := []string{"copy_trade_id", "recipient", "amount"}

	w, err := NewCSVSink(path, header, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, w.Write([]string{fmt.Sprintf("t-%d-%d", g, i), "up1", "0.5"}))
			}
		}(g)
	}
	wg.Wait()

	records, _ := w.Stats()
	assert.Equal(t, uint64(400), records)
	require.NoError(t, w.Close())

	// reopening must not repeat the header
	w, err = NewCSVSink(path, header, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, w.Write([]string{"t-last", "memeflow", "1"}))
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write([]string{"late"}), ErrSinkClosed)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 402)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "t-last", rows[401][0])
}
