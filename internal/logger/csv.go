// ==================================
// File: internal/logger/csv.go
// ==================================
package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrSinkClosed = errors.New("csv sink closed")

// CSVSink appends rows to a CSV file. Writers hand rows to a single
// goroutine that owns the file and flushes it on a timer and on Close.
// The header is written only when the file is empty.
type CSVSink struct {
	path   string
	logger *zap.Logger

	rows     chan []string
	stopOnce sync.Once
	stopped  chan struct{}
	// closeMu keeps Write from racing the channel close.
	closeMu sync.RWMutex
	closed  bool

	accepted atomic.Uint64
	flushes  atomic.Uint64
	failure  atomic.Pointer[error]
}

func NewCSVSink(path string, header []string, flushInterval time.Duration, logger *zap.Logger) (*CSVSink, error) {
	if flushInterval <= 0 {
		return nil, fmt.Errorf("invalid flush interval %s", flushInterval)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat csv %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 && len(header) > 0 {
		_ = w.Write(header)
		w.Flush()
		if err := w.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	s := &CSVSink{
		path:    path,
		logger:  logger,
		rows:    make(chan []string, 256),
		stopped: make(chan struct{}),
	}
	go s.run(file, w, flushInterval)
	return s, nil
}

// Write queues one row. It blocks while the queue is full.
func (s *CSVSink) Write(row []string) error {
	if errp := s.failure.Load(); errp != nil {
		return *errp
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.rows <- append([]string(nil), row...)
	s.accepted.Add(1)
	return nil
}

func (s *CSVSink) run(file *os.File, w *csv.Writer, interval time.Duration) {
	defer close(s.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dirty := false
	flush := func() {
		if !dirty {
			return
		}
		w.Flush()
		err := w.Error()
		if err == nil {
			err = file.Sync()
		}
		if err != nil {
			s.fail(fmt.Errorf("flush csv %s: %w", s.path, err))
			return
		}
		dirty = false
		s.flushes.Add(1)
	}

	for {
		select {
		case row, ok := <-s.rows:
			if !ok {
				flush()
				if err := file.Close(); err != nil {
					s.fail(fmt.Errorf("close csv %s: %w", s.path, err))
				}
				return
			}
			if err := w.Write(row); err != nil {
				s.fail(fmt.Errorf("write csv row: %w", err))
				continue
			}
			dirty = true
		case <-ticker.C:
			flush()
		}
	}
}

func (s *CSVSink) fail(err error) {
	if s.failure.CompareAndSwap(nil, &err) {
		s.logger.Error("CSV sink failed", zap.String("file", s.path), zap.Error(err))
	}
}

// Close drains queued rows, flushes and closes the file. It returns the first
// write or flush error the sink hit.
func (s *CSVSink) Close() error {
	s.stopOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.rows)
		s.closeMu.Unlock()
	})
	<-s.stopped

	s.logger.Info("CSV sink closed",
		zap.String("file", s.path),
		zap.Uint64("rows", s.accepted.Load()),
		zap.Uint64("flushes", s.flushes.Load()))
	if errp := s.failure.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Stats returns the rows accepted and flushes performed so far.
func (s *CSVSink) Stats() (rows, flushes uint64) {
	return s.accepted.Load(), s.flushes.Load()
}
