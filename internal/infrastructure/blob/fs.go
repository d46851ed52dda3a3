// Package blob stores uploaded documents on the local filesystem or in S3.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fastygo/incidencias/usecase"
)

const fsScheme = "fs://"

// ErrInvalidRef is returned for references the backend did not issue.
var ErrInvalidRef = usecase.ErrRefAjena

// FS keeps blobs as plain files under a root directory.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: empty root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &FS{root: abs}, nil
}

func (f *FS) Store(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(f.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return fsScheme + clean, nil
}

func (f *FS) Exists(_ context.Context, ref string) (bool, error) {
	target, err := f.resolve(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes the blob; a missing blob is not an error.
func (f *FS) Delete(_ context.Context, ref string) error {
	target, err := f.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FS) resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, fsScheme) {
		return "", ErrInvalidRef
	}
	clean, err := cleanKey(strings.TrimPrefix(ref, fsScheme))
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", ErrInvalidRef
	}
	return clean, nil
}

var _ usecase.BlobStore = (*FS)(nil)
