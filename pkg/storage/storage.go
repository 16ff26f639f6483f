// Package storage makes local and Google Storage paths available as local
// files, which is what the NIfTI decoder requires.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

const gsPrefix = "gs://"

// Opener gives read access to local or remote paths
type Opener interface {
	// Local returns a local filesystem path holding the contents of p. The
	// returned cleanup func removes any staged copy and must always be called.
	Local(ctx context.Context, p string) (local string, cleanup func(), err error)

	// Open streams the contents of p
	Open(ctx context.Context, p string) (io.ReadCloser, error)
}

// Store resolves gs:// paths through a lazily created Google Storage client.
// Other paths are used as-is.
type Store struct {
	// TempDir is where remote objects are staged; empty means os.TempDir()
	TempDir string

	mu     sync.Mutex
	client *gcs.Client
}

// IsRemote reports whether p refers to a Google Storage object
func IsRemote(p string) bool {
	return strings.HasPrefix(p, gsPrefix)
}

// SplitGSPath splits gs://bucket/object into its bucket and object names
func SplitGSPath(p string) (bucket, object string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(p, gsPrefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("tried to split your google storage path into bucket and object, but got %d parts: %v", len(parts), parts)
	}
	return parts[0], parts[1], nil
}

// Join appends elem to a local or gs:// base path
func Join(base string, elem ...string) string {
	if IsRemote(base) {
		return gsPrefix + path.Join(append([]string{strings.TrimPrefix(base, gsPrefix)}, elem...)...)
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

func (s *Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if !IsRemote(p) {
		return os.Open(p)
	}

	obj, err := s.object(ctx, p)
	if err != nil {
		return nil, err
	}
	rdr, err := obj.NewReader(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}
	return rdr, nil
}

func (s *Store) Local(ctx context.Context, p string) (string, func(), error) {
	if !IsRemote(p) {
		if _, err := os.Stat(p); err != nil {
			return "", func() {}, err
		}
		return p, func() {}, nil
	}

	rdr, err := s.Open(ctx, p)
	if err != nil {
		return "", func() {}, err
	}
	defer rdr.Close()

	// Keep the base name so that suffix-sensitive readers (.nii.gz) still work
	f, err := os.CreateTemp(s.TempDir, "staged-*-"+path.Base(p))
	if err != nil {
		return "", func() {}, pfx.Err(err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, rdr); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, pfx.Err(err)
	}

	return f.Name(), cleanup, nil
}

// Close releases the Google Storage client, if one was created
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Store) object(ctx context.Context, p string) (*gcs.ObjectHandle, error) {
	bucket, object, err := SplitGSPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		// Default credentials
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, pfx.Err(err)
		}
		s.client = client
	}

	return s.client.Bucket(bucket).Object(object), nil
}
