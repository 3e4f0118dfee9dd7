// Package journal appends accepted world actions to zstd-compressed JSONL
// files with hourly rotation. The journal is write-only at runtime; replay
// tooling reads the files offline.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

type entry struct {
	Kind string `json:"kind"`
	At   int64  `json:"at"`
	Data any    `json:"data"`
}

// Writer rotates to a new file every UTC hour. Safe for concurrent use,
// though the world submits from a single goroutine.
type Writer struct {
	baseDir string
	log     *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	buf     *bufio.Writer
}

func New(baseDir string, logger *log.Logger) *Writer {
	return &Writer{baseDir: baseDir, log: logger, now: time.Now}
}

// Record appends one action entry. Write failures are logged, not returned;
// the journal must never stall or fail gameplay.
func (w *Writer) Record(kind string, data any) {
	if err := w.write(entry{Kind: kind, At: w.now().UnixMilli(), Data: data}); err != nil {
		if w.log != nil {
			w.log.Printf("journal %s: %v", kind, err)
		}
	}
}

func (w *Writer) write(e entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("actions-%s.jsonl.zst", hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	var err error
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.buf = nil
	return err
}
