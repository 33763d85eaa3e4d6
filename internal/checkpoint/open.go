package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/chunkgate/internal/pathstore"
)

// Options carries credentials for remote backends.
type Options struct {
	PathstoreAPIKey string
}

// Open picks a backend from the location scheme:
//
//	mem://                      in-process map
//	sqlite://PATH               sqlite database file
//	pathstore://HOST[:PORT]     pathstore service over http
//	pathstore+https://HOST      pathstore service over https
//	anything else               JSON files via afs (local path, file://, s3://, gs://...)
func Open(ctx context.Context, location string, opts Options) (Store, error) {
	switch {
	case location == "mem://" || location == "mem":
		return NewMemoryStore(), nil
	case strings.HasPrefix(location, "sqlite://"):
		path := strings.TrimPrefix(location, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite checkpoint location needs a path")
		}
		return OpenSQLite(ctx, path)
	case strings.HasPrefix(location, "pathstore+https://"):
		base := "https://" + strings.TrimPrefix(location, "pathstore+https://")
		return NewPathstoreStore(pathstore.NewClient(base, opts.PathstoreAPIKey), ""), nil
	case strings.HasPrefix(location, "pathstore://"):
		base := "http://" + strings.TrimPrefix(location, "pathstore://")
		return NewPathstoreStore(pathstore.NewClient(base, opts.PathstoreAPIKey), ""), nil
	case location == "":
		return NewFileStore("checkpoints"), nil
	}
	return NewFileStore(location), nil
}
