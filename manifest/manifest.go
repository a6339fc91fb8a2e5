// Package manifest reads and writes sha256sum style checksum manifests and
// verifies image files against them.
package manifest

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type Algorithm int

const (
	MD5 Algorithm = iota
	SHA1
	SHA256
)

func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	}
	return "sha256"
}

func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	}
	return sha256.New()
}

func algorithmFor(digest string) (Algorithm, error) {
	switch len(digest) {
	case 2 * md5.Size:
		return MD5, nil
	case 2 * sha1.Size:
		return SHA1, nil
	case 2 * sha256.Size:
		return SHA256, nil
	}
	return 0, fmt.Errorf("%d hex digits: %w", len(digest), ErrorAlgorithm)
}

type Entry struct {
	Digest    string
	Path      string
	Algorithm Algorithm
}

func (e Entry) String() string {
	return e.Digest + "  " + e.Path
}

func parseLine(line string) (Entry, error) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return Entry{}, ErrorSyntax
	}

	digest := strings.ToLower(line[:i])
	if _, err := hex.DecodeString(digest); err != nil {
		return Entry{}, ErrorSyntax
	}
	alg, err := algorithmFor(digest)
	if err != nil {
		return Entry{}, err
	}

	path := strings.TrimLeft(line[i:], " \t")
	path = strings.TrimPrefix(path, "*")
	if path == "" {
		return Entry{}, ErrorSyntax
	}

	return Entry{Digest: digest, Path: path, Algorithm: alg}, nil
}

// Parse reads "<hexdigest>  <path>" lines. Blank lines and # comments are
// skipped and a leading * (binary mode marker) on the path is dropped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		entries = append(entries, e)
	}

	return entries, s.Err()
}

func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func HashFile(path string, alg Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := alg.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, filepath.FromSlash(path))
}

func (e Entry) Check(root string) error {
	got, err := HashFile(resolve(root, e.Path), e.Algorithm)
	if err != nil {
		return err
	}
	if got != e.Digest {
		return fmt.Errorf("%s: %s %s, expected %s: %w", e.Path, e.Algorithm, got, e.Digest, ErrorMismatch)
	}
	return nil
}

// Verify checks every entry relative to root and reports all failures.
func Verify(root string, entries []Entry) error {
	var result error
	for _, e := range entries {
		if err := e.Check(root); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Lookup finds the entry whose path matches file, compared after cleaning.
func Lookup(entries []Entry, file string) (Entry, error) {
	want := filepath.Clean(filepath.FromSlash(file))
	for _, e := range entries {
		if filepath.Clean(filepath.FromSlash(e.Path)) == want {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: %w", file, ErrorNotListed)
}

// Generate hashes paths (relative to root) with SHA-256 and writes a
// manifest to w in the order given.
func Generate(w io.Writer, root string, paths []string) ([]Entry, error) {
	var entries []Entry
	var result error

	for _, p := range paths {
		digest, err := HashFile(resolve(root, p), SHA256)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		entries = append(entries, Entry{Digest: digest, Path: filepath.ToSlash(p), Algorithm: SHA256})
	}
	if result != nil {
		return nil, result
	}

	bw := bufio.NewWriter(w)
	for _, e := range entries {
		fmt.Fprintln(bw, e)
	}
	return entries, bw.Flush()
}
