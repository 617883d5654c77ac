package tle

import (
	"context"
	"fmt"
	"os"
)

// Source supplies the raw element-set text for a tracking session.
type Source interface {
	// Name identifies the source in logs and metadata.
	Name() string
	// Load returns the complete text. It is the only blocking step before
	// tracking can start.
	Load(ctx context.Context) ([]byte, error)
}

// FileSource reads element sets from a local file.
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Name() string {
	return "file:" + f.Path
}

func (f *FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading element file: %w", err)
	}
	return data, nil
}
