package ramdisk

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/u-root/u-root/pkg/cpio"
)

// Archive is an in-memory newc cpio image.
type Archive struct {
	recs []cpio.Record
	m    map[string]int
}

func Load(data []byte) (*Archive, error) {
	rr := cpio.Newc.Reader(bytes.NewReader(data))

	recs, err := cpio.ReadAllRecords(rr)
	if err != nil {
		return nil, err
	}

	a := &Archive{m: map[string]int{}}
	for _, r := range recs {
		if r.Info.Name == cpio.Trailer {
			continue
		}
		a.m[normName(r.Info.Name)] = len(a.recs)
		a.recs = append(a.recs, r)
	}
	return a, nil
}

func normName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimPrefix(name, "/")
}

func (a *Archive) Names() []string {
	var names []string
	for _, r := range a.recs {
		names = append(names, r.Info.Name)
	}
	return names
}

func (a *Archive) lookupRecord(name string) (*cpio.Record, error) {
	i, ok := a.m[normName(name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrorNotFound)
	}
	r := &a.recs[i]
	if r.Info.Mode&cpio.S_IFMT != cpio.S_IFREG {
		return nil, fmt.Errorf("%s: %w", name, ErrorNotRegular)
	}
	return r, nil
}

func (a *Archive) Exists(name string) bool {
	_, err := a.lookupRecord(name)
	return err == nil
}

// Lookup returns the content of a regular file in the archive.
func (a *Archive) Lookup(name string) ([]byte, error) {
	r, err := a.lookupRecord(name)
	if err != nil {
		return nil, err
	}

	return io.ReadAll(io.NewSectionReader(r.ReaderAt, 0, int64(r.Info.FileSize)))
}

// Replace swaps the content of an existing regular file, keeping its
// metadata.
func (a *Archive) Replace(name string, data []byte) error {
	r, err := a.lookupRecord(name)
	if err != nil {
		return err
	}

	r.ReaderAt = bytes.NewReader(data)
	r.Info.FileSize = uint64(len(data))
	return nil
}

// Bytes serializes the archive with every entry owned by root.
func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := cpio.Newc.Writer(&buf)

	recs := make([]cpio.Record, len(a.recs))
	for i, r := range a.recs {
		r.Info.UID = 0
		r.Info.GID = 0
		recs[i] = r
	}

	if err := cpio.WriteRecords(w, recs); err != nil {
		return nil, err
	}
	if err := cpio.WriteTrailer(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
