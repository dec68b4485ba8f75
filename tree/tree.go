// Package tree abstracts the on-disk mirror layout (§6) the orchestrator
// and downloader write into, the same way the teacher's storage package
// abstracts depot's serving tree — but extended with the Exists/Symlink/
// ReadLink/Remove operations ETag content addressing needs (§4.6 step 9).
package tree

import (
	"context"
	"io"
)

// Tree is the output abstraction the downloader writes tarballs, metadata
// documents, and encoded indices into.
type Tree interface {
	// Read opens a file for reading. ok is false when the file does not
	// exist; that is not an error.
	Read(ctx context.Context, path string) (r io.ReadCloser, ok bool, err error)

	// Write creates or overwrites a file with the contents of data, which
	// Write always closes.
	Write(ctx context.Context, path string, data io.ReadCloser) error

	// Exists reports whether path is present, without opening it.
	Exists(ctx context.Context, path string) (bool, error)

	// Remove deletes path. Removing a path that does not exist is not an
	// error (§4.6 step 9 tolerates not-found on unlink).
	Remove(ctx context.Context, path string) error

	// Symlink creates path as a symbolic alias whose relative target is
	// target (a basename within the same directory, per §6 "relative
	// basename, not an absolute path").
	Symlink(ctx context.Context, path, target string) error

	// ReadLink returns the relative target a previous Symlink call
	// recorded at path. ok is false if path is not a symlink or does not
	// exist.
	ReadLink(ctx context.Context, path string) (target string, ok bool, err error)
}
