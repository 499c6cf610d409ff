// Package blobstore implements the read-only, content-addressed byte
// store backing file items: each blob lives at
// <root>/<id[0:2]>/<id> and its content type is always derived by
// sniffing the bytes, never read from a stored field — items carry no
// mimeType key.
package blobstore

import (
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mhowlett/infumap/internal/apperr"
)

// Store reads blobs from a content-addressed directory tree rooted at
// root.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Blob is a fetched blob's bytes plus its sniffed content type.
type Blob struct {
	Data        []byte
	ContentType string
}

// Get reads the blob for id, sniffing its content type. A missing file
// is a NotFound error.
func (s *Store) Get(id string) (Blob, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return Blob{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Blob{}, apperr.New(apperr.NotFound, "blob not found: "+id)
		}
		return Blob{}, apperr.Wrap(apperr.IO, "read blob", err)
	}

	mime := mimetype.Detect(data)
	return Blob{Data: data, ContentType: mime.String()}, nil
}

func (s *Store) pathFor(id string) (string, error) {
	if len(id) < 2 {
		return "", apperr.New(apperr.RecordShape, "blob id too short")
	}
	return filepath.Join(s.root, id[0:2], id), nil
}
