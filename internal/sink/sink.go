package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/dgallion1/chunkgate/internal/record"
)

const (
	AcceptedFile = "accepted.jsonl"
	RejectedFile = "rejected.jsonl"
	StatsFile    = "stats.json"
)

// Offsets are the committed sizes of the two sink files.
type Offsets struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Writer receives routed records. Commit makes everything written so far durable.
type Writer interface {
	Accept(record.AcceptedChunk) error
	Reject(record.RejectedRecord) error
	Commit() (Offsets, error)
	Close() error
}

// Files writes accepted.jsonl and rejected.jsonl under one directory.
type Files struct {
	dir      string
	accepted *JSONL
	rejected *JSONL
}

// OpenFiles opens both sinks in dir, rolled back to the given offsets.
func OpenFiles(dir string, at Offsets) (*Files, error) {
	acc, err := OpenJSONL(filepath.Join(dir, AcceptedFile), at.Accepted)
	if err != nil {
		return nil, err
	}
	rej, err := OpenJSONL(filepath.Join(dir, RejectedFile), at.Rejected)
	if err != nil {
		acc.Close()
		return nil, err
	}
	return &Files{dir: dir, accepted: acc, rejected: rej}, nil
}

func (f *Files) Accept(c record.AcceptedChunk) error  { return f.accepted.Write(c) }
func (f *Files) Reject(r record.RejectedRecord) error { return f.rejected.Write(r) }

func (f *Files) Commit() (Offsets, error) {
	acc, err := f.accepted.Commit()
	if err != nil {
		return Offsets{}, err
	}
	rej, err := f.rejected.Commit()
	if err != nil {
		return Offsets{}, err
	}
	return Offsets{Accepted: acc, Rejected: rej}, nil
}

func (f *Files) Dir() string { return f.dir }

func (f *Files) Close() error {
	err1 := f.accepted.Close()
	err2 := f.rejected.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Discard counts records without storing them. Used for dry runs.
type Discard struct {
	Accepted int
	Rejected int
}

func (d *Discard) Accept(record.AcceptedChunk) error  { d.Accepted++; return nil }
func (d *Discard) Reject(record.RejectedRecord) error { d.Rejected++; return nil }
func (d *Discard) Commit() (Offsets, error)           { return Offsets{}, nil }
func (d *Discard) Close() error                       { return nil }

// WriteJSON stores v as indented JSON at URL, which may be a local path.
func WriteJSON(ctx context.Context, URL string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", URL, err)
	}
	fs := afs.New()
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", URL, err)
	}
	return nil
}
