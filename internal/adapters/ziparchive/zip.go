// Package ziparchive decodes the zip archives the platform serves artifacts as.
package ziparchive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"
)

const zipMIME = "application/zip"

// Opener implements ports.ArchiveOpener.
type Opener struct{}

// Open parses raw as a zip archive.
func (Opener) Open(raw []byte) (ports.Archive, error) {
	if !isZip(raw) {
		return nil, fmt.Errorf("%w: content is %s", domain.ErrCorruptArchive, mimetype.Detect(raw).String())
	}
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	return &Archive{r: r}, nil
}

// isZip accepts zip and the formats built on top of it.
func isZip(raw []byte) bool {
	for m := mimetype.Detect(raw); m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true
		}
	}
	return false
}

// Archive is an opened zip archive.
type Archive struct {
	r *zip.Reader

	once  sync.Once
	names []string
	files map[string]*zip.File
}

func (a *Archive) index() {
	a.once.Do(func() {
		a.names = make([]string, 0, len(a.r.File))
		a.files = make(map[string]*zip.File, len(a.r.File))
		for _, f := range a.r.File {
			a.names = append(a.names, f.Name)
			if _, ok := a.files[f.Name]; !ok {
				a.files[f.Name] = f
			}
		}
	})
}

// List returns the entry names in the order they are stored.
func (a *Archive) List() []string {
	a.index()
	return append([]string(nil), a.names...)
}

// ReadText returns the content of the first candidate present in the
// archive. Directory entries never match.
func (a *Archive) ReadText(candidates ...string) (string, bool, error) {
	a.index()
	for _, name := range candidates {
		f, ok := a.files[name]
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", false, fmt.Errorf("%w: opening %s: %v", domain.ErrCorruptArchive, name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", false, fmt.Errorf("%w: reading %s: %v", domain.ErrCorruptArchive, name, err)
		}
		return string(b), true, nil
	}
	return "", false, nil
}
