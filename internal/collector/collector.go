// Package collector turns a file-selection event into the ordered set of
// point-cloud files that will be submitted for analysis.
package collector

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Suffix is the only file extension accepted for analysis.
const Suffix = ".xyz"

// multipartMemory is how much of an upload is held in memory before parts
// spill to temporary files.
const multipartMemory = 8 << 20

// ErrTooLarge is returned by FromRequest when the body exceeds its limit.
var ErrTooLarge = errors.New("upload too large")

// SelectedFile is a file chosen by the user: its name and full contents.
type SelectedFile struct {
	Name string
	Data []byte
}

// Digest is the hex SHA-256 of the file contents. Runs store it so the same
// point cloud can be recognised across submissions.
func (f SelectedFile) Digest() string {
	sum := sha256.Sum256(f.Data)
	return hex.EncodeToString(sum[:])
}

// Selection is the outcome of one selection event. It replaces any earlier
// selection wholesale.
type Selection struct {
	Files    []SelectedFile
	Rejected []string
}

// Accepts reports whether a file name carries the required suffix.
func Accepts(name string) bool {
	return strings.HasSuffix(name, Suffix)
}

// Collect keeps the files whose name ends with Suffix, preserving their order.
func Collect(files []SelectedFile) Selection {
	sel := Selection{Files: make([]SelectedFile, 0, len(files))}
	for _, f := range files {
		if Accepts(f.Name) {
			sel.Files = append(sel.Files, f)
			continue
		}
		sel.Rejected = append(sel.Rejected, f.Name)
	}
	return sel
}

// CanSubmit reports whether the selection may be sent for analysis.
func (s Selection) CanSubmit() bool {
	return len(s.Files) > 0
}

// Names lists the accepted file names in selection order.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		names = append(names, f.Name)
	}
	return names
}

// TotalBytes is the combined size of the accepted files.
func (s Selection) TotalBytes() int64 {
	var n int64
	for _, f := range s.Files {
		n += int64(len(f.Data))
	}
	return n
}

// FromMultipart reads every uploaded part. Names are reduced to their base
// name; filtering is left to Collect.
func FromMultipart(headers []*multipart.FileHeader) ([]SelectedFile, error) {
	files := make([]SelectedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, SelectedFile{Name: filepath.Base(fh.Filename), Data: data})
	}
	return files, nil
}

// FromRequest reads every file posted under field. A non-positive maxBytes
// leaves the body unbounded.
func FromRequest(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) ([]SelectedFile, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	defer r.MultipartForm.RemoveAll()
	return FromMultipart(r.MultipartForm.File[field])
}

// FromPaths reads files from disk. A directory contributes its regular files
// (one level, sorted by name); everything else is read as given.
func FromPaths(paths []string) ([]SelectedFile, error) {
	var files []SelectedFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := readFile(p)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			f, err := readFile(filepath.Join(p, e.Name()))
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func readFile(path string) (SelectedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectedFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return SelectedFile{Name: filepath.Base(path), Data: data}, nil
}
