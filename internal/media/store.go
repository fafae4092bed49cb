package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore is the storage contract the pipeline writes through. Names are
// always pipeline-generated tokens, never derived from request paths.
type BlobStore interface {
	Write(name string, r io.Reader) (int64, error)
	Open(name string) (io.ReadSeekCloser, error)
	Remove(name string) error
}

// DiskStore stores blobs as flat files under a single root directory.
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Write streams r into a new file. The file must not already exist; a failed
// copy removes the partial file so rejections never leave orphans.
func (d *DiskStore) Write(name string, r io.Reader) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	path := filepath.Join(d.root, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("media: create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("media: write %s: %w", name, err)
	}
	return n, nil
}

// Open returns the stored file for reading.
func (d *DiskStore) Open(name string) (io.ReadSeekCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (d *DiskStore) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(d.root, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ModTime returns when a stored file was last written. The orphan sweep uses
// it to spare files whose post row may still be in flight.
func (d *DiskStore) ModTime(name string) (time.Time, error) {
	if err := validName(name); err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(filepath.Join(d.root, name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// List returns the names currently on disk. Used by the orphan sweep job.
func (d *DiskStore) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// validName refuses anything that could escape the root: path separators,
// dot-dot, empty or hidden names.
func validName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") {
		return errors.New("media: invalid storage name")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.New("media: invalid storage name")
	}
	return nil
}
