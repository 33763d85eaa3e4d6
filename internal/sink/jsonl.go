// Package sink writes accepted and rejected chunks as newline-delimited JSON.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONL appends one JSON object per line and tracks the committed byte offset.
type JSONL struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	offset int64
}

// OpenJSONL opens path for appending after truncating it to offset. Bytes past
// offset were written after the last commit and are discarded.
func OpenJSONL(path string, offset int64) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat sink %s: %w", path, err)
	}
	if info.Size() < offset {
		f.Close()
		return nil, fmt.Errorf("sink %s is %d bytes, checkpoint expects %d", path, info.Size(), offset)
	}
	if err := f.Truncate(offset); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate sink %s: %w", path, err)
	}
	if _, err := f.Seek(offset, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek sink %s: %w", path, err)
	}
	return &JSONL{path: path, f: f, w: bufio.NewWriterSize(f, 64<<10), offset: offset}, nil
}

// Write buffers one record.
func (j *JSONL) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')
	n, err := j.w.Write(data)
	j.offset += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", j.path, err)
	}
	return nil
}

// Commit flushes and fsyncs, returning the durable end offset.
func (j *JSONL) Commit() (int64, error) {
	if err := j.w.Flush(); err != nil {
		return 0, fmt.Errorf("flush %s: %w", j.path, err)
	}
	if err := j.f.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", j.path, err)
	}
	return j.offset, nil
}

func (j *JSONL) Path() string { return j.path }

func (j *JSONL) Close() error {
	if err := j.w.Flush(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
