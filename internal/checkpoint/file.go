package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const fileSuffix = ".checkpoint.json"

// FileStore keeps one JSON document per checkpoint under a base URL. Any
// location afs can address works; plain paths are local files.
type FileStore struct {
	fs      afs.Service
	baseURL string
}

func NewFileStore(baseURL string) *FileStore {
	return &FileStore{fs: afs.New(), baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *FileStore) location(docID string) string {
	return url.Join(f.baseURL, Key(docID)+fileSuffix)
}

func (f *FileStore) Load(ctx context.Context, docID string) (*State, error) {
	return f.read(ctx, f.location(docID))
}

func (f *FileStore) read(ctx context.Context, URL string) (*State, error) {
	exists, err := f.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", URL, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", URL, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", URL, err)
	}
	return &s, nil
}

// Save writes to a temp object and moves it over the previous checkpoint.
func (f *FileStore) Save(ctx context.Context, s *State) error {
	final := f.location(s.DocumentID)
	prev, err := f.read(ctx, final)
	if err != nil {
		return err
	}
	if err := checkForward(prev, s); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp := final + ".tmp"
	if err := f.fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload %s: %w", tmp, err)
	}
	if err := f.fs.Move(ctx, tmp, final); err != nil {
		// Fall back to a direct write when the backend cannot rename.
		if err2 := f.fs.Upload(ctx, final, file.DefaultFileOsMode, bytes.NewReader(data)); err2 != nil {
			_ = f.fs.Delete(ctx, tmp)
			return fmt.Errorf("write %s: %w", final, err2)
		}
		_ = f.fs.Delete(ctx, tmp)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, docID string) error {
	URL := f.location(docID)
	exists, err := f.fs.Exists(ctx, URL)
	if err != nil || !exists {
		return err
	}
	if err := f.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("delete %s: %w", URL, err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context) ([]State, error) {
	exists, err := f.fs.Exists(ctx, f.baseURL)
	if err != nil || !exists {
		return nil, err
	}
	objects, err := f.fs.List(ctx, f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.baseURL, err)
	}
	var out []State
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), fileSuffix) {
			continue
		}
		s, err := f.read(ctx, object.URL())
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (f *FileStore) Close() error { return nil }
