// Package artifacts persists the files stages write as a side channel to
// their in-memory artifacts. Keys are slash separated, "<stage>/<file>",
// and are resolved under a per-pipeline root so a re-run overwrites the
// previous files instead of adding new ones.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"go-ml-pipeline/pkg/utils"
)

// Sink stores and retrieves stage files. Put returns the location of the
// stored object, the same string Location reports for the key; Open
// accepts any such location.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Location(key string) string
}

// Key builds the slash separated key of a stage file
func Key(stage, fileName string) string {
	return path.Join(stage, path.Base(fileName))
}

// PutFile stores data under the stage key, deriving the content type from
// the file name
func PutFile(ctx context.Context, sink Sink, stage, fileName string, data []byte) (string, error) {
	return sink.Put(ctx, Key(stage, fileName), data, utils.ContentType(fileName))
}

// PutJSON stores v as indented JSON
func PutJSON(ctx context.Context, sink Sink, stage, fileName string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON: %w", err)
	}
	return sink.Put(ctx, Key(stage, fileName), append(data, '\n'), "application/json")
}

// ReadAll opens a location and reads it fully
func ReadAll(ctx context.Context, sink Sink, location string) ([]byte, error) {
	rc, err := sink.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return data, nil
}

// ReadJSON decodes the object at location into v
func ReadJSON(ctx context.Context, sink Sink, location string, v any) error {
	data, err := ReadAll(ctx, sink, location)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", location, err)
	}
	return nil
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("invalid artifact key %q", key)
		}
	}
	return nil
}

// Open returns the sink for a pipeline: a MinIO bucket when store is set,
// otherwise the local artifacts directory dir.
func Open(ctx context.Context, dir string, store *MinIOConfig, pipeline string) (Sink, error) {
	if store != nil {
		return NewMinIO(ctx, *store, pipeline)
	}
	return NewLocal(dir, pipeline)
}
