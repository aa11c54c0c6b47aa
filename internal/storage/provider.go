// Package storage holds capture blobs in a single flat directory.
package storage

import "time"

// BlobInfo describes one stored file.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Provider is the blob store used by the capture index. Names are bare file
// names relative to the root; nested paths are rejected.
type Provider interface {
	// Root returns the absolute directory backing the store.
	Root() string
	// Path resolves name to an absolute path inside the root.
	Path(name string) (string, error)
	// List returns every blob, skipping dotfiles and directories.
	List() ([]BlobInfo, error)
	// Read returns the bytes of the named blob.
	Read(name string) ([]byte, error)
	// Write atomically stores content under name.
	Write(name string, content []byte) error
	// Delete removes the named blob.
	Delete(name string) error
}
