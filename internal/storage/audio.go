package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stubot/internal/model"
)

var (
	ErrInvalidFilename = errors.New("invalid artifact filename")
	ErrArtifactExists  = errors.New("artifact already exists")
)

// saveAttempts bounds how many fresh names Save tries when another writer
// already holds the generated one.
const saveAttempts = 3

// StorageError reports a failed write of a single artifact.
type StorageError struct {
	Filename string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to store audio artifact %s: %v", e.Filename, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ArtifactInfo describes a stored artifact.
type ArtifactInfo struct {
	Filename string
	Size     int64
	ModTime  time.Time
}

// AudioStore keeps audio artifacts as flat files under a single root directory.
type AudioStore struct {
	root  string
	namer *Namer
}

// NewAudioStore returns a store rooted at dir. The directory is created on
// first write.
func NewAudioStore(dir string) *AudioStore {
	return &AudioStore{root: dir, namer: NewNamer()}
}

func (s *AudioStore) Root() string { return s.root }

// Name returns a fresh artifact filename for kind.
func (s *AudioStore) Name(kind model.ArtifactKind) string {
	return s.namer.Next(kind)
}

// Save writes data under a freshly generated name and returns that name.
func (s *AudioStore) Save(kind model.ArtifactKind, data []byte) (string, error) {
	var err error
	for i := 0; i < saveAttempts; i++ {
		filename := s.Name(kind)
		err = s.Put(filename, data)
		if err == nil {
			return filename, nil
		}
		if !errors.Is(err, ErrArtifactExists) {
			return "", err
		}
	}
	return "", err
}

// Put writes data under filename. Existing artifacts are never overwritten.
func (s *AudioStore) Put(filename string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return &StorageError{Filename: filename, Err: fmt.Errorf("failed to create audio directory: %w", err)}
	}

	dst := filepath.Join(s.root, filename)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &StorageError{Filename: filename, Err: ErrArtifactExists}
		}
		return &StorageError{Filename: filename, Err: err}
	}

	if _, err := out.Write(data); err != nil {
		out.Close()
		os.Remove(dst)
		return &StorageError{Filename: filename, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return &StorageError{Filename: filename, Err: err}
	}
	return nil
}

// Delete removes an artifact. Deleting a missing artifact reports false
// without an error.
func (s *AudioStore) Delete(filename string) (bool, error) {
	if err := validateFilename(filename); err != nil {
		return false, err
	}
	err := os.Remove(filepath.Join(s.root, filename))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete audio artifact %s: %w", filename, err)
	}
	return true, nil
}

// Exists reports whether filename is a stored artifact.
func (s *AudioStore) Exists(filename string) bool {
	if validateFilename(filename) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.root, filename))
	return err == nil && info.Mode().IsRegular()
}

// List returns all artifacts in the root. A missing root yields no artifacts.
func (s *AudioStore) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list audio directory: %w", err)
	}

	out := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ArtifactInfo{Filename: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

func validateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// Namer generates artifact filenames of the form
// {kind}_{yyyyMMddHHmmss}{micros}.{ext}. Timestamps handed out by one Namer
// strictly increase, so concurrent callers never share a name.
type Namer struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

func (n *Namer) Next(kind model.ArtifactKind) string {
	n.mu.Lock()
	t := n.now().UTC().Truncate(time.Microsecond)
	if !t.After(n.last) {
		t = n.last.Add(time.Microsecond)
	}
	n.last = t
	n.mu.Unlock()

	return fmt.Sprintf("%s_%s%06d.%s", kind, t.Format("20060102150405"), t.Nanosecond()/1000, kind.Ext())
}
