package collector

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func files(names ...string) []SelectedFile {
	out := make([]SelectedFile, 0, len(names))
	for _, n := range names {
		out = append(out, SelectedFile{Name: n, Data: []byte(n)})
	}
	return out
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name      string
		in        []string
		want      []string
		rejected  []string
		canSubmit bool
	}{
		{name: "mixed keeps order", in: []string{"a.xyz", "b.txt", "c.xyz"}, want: []string{"a.xyz", "c.xyz"}, rejected: []string{"b.txt"}, canSubmit: true},
		{name: "empty", in: nil, want: []string{}, canSubmit: false},
		{name: "nothing matches", in: []string{"a.txt", "b.xyz.bak"}, want: []string{}, rejected: []string{"a.txt", "b.xyz.bak"}, canSubmit: false},
		{name: "suffix is case sensitive", in: []string{"A.XYZ", "frame_001.xyz"}, want: []string{"frame_001.xyz"}, rejected: []string{"A.XYZ"}, canSubmit: true},
		{name: "bare suffix", in: []string{".xyz"}, want: []string{".xyz"}, canSubmit: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sel := Collect(files(tt.in...))
			if got := sel.Names(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Names() = %v, want %v", got, tt.want)
			}
			if !reflect.DeepEqual(sel.Rejected, tt.rejected) {
				t.Fatalf("Rejected = %v, want %v", sel.Rejected, tt.rejected)
			}
			if sel.CanSubmit() != tt.canSubmit {
				t.Fatalf("CanSubmit() = %v, want %v", sel.CanSubmit(), tt.canSubmit)
			}
		})
	}
}

func TestCollectKeepsContents(t *testing.T) {
	sel := Collect([]SelectedFile{{Name: "t0.xyz", Data: []byte("1 2 3\n")}})
	if string(sel.Files[0].Data) != "1 2 3\n" {
		t.Fatalf("unexpected data %q", sel.Files[0].Data)
	}
	if sel.TotalBytes() != 6 {
		t.Fatalf("expected 6 bytes, got %d", sel.TotalBytes())
	}
}

func TestFromPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xyz", "a.xyz", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	single := filepath.Join(t.TempDir(), "z.xyz")
	if err := os.WriteFile(single, []byte("z"), 0o644); err != nil {
		t.Fatalf("write single: %v", err)
	}

	got, err := FromPaths([]string{single, dir})
	if err != nil {
		t.Fatalf("FromPaths: %v", err)
	}
	sel := Collect(got)
	want := []string{"z.xyz", "a.xyz", "b.xyz"}
	if !reflect.DeepEqual(sel.Names(), want) {
		t.Fatalf("Names() = %v, want %v", sel.Names(), want)
	}
	if !reflect.DeepEqual(sel.Rejected, []string{"notes.txt"}) {
		t.Fatalf("unexpected rejected %v", sel.Rejected)
	}
}

func TestFromPathsMissing(t *testing.T) {
	if _, err := FromPaths([]string{filepath.Join(t.TempDir(), "nope.xyz")}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestFromMultipart(t *testing.T) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range []string{"dir/a.xyz", "b.txt"} {
		part, err := w.CreateFormFile("xyz_files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("payload-" + filepath.Base(name))); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}

	got, err := FromMultipart(req.MultipartForm.File["xyz_files"])
	if err != nil {
		t.Fatalf("FromMultipart: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got))
	}
	if got[0].Name != "a.xyz" || string(got[0].Data) != "payload-a.xyz" {
		t.Fatalf("unexpected first file %+v", got[0])
	}
}

func multipartBody(t *testing.T, field string, parts map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range parts {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestFromRequest(t *testing.T) {
	body, contentType := multipartBody(t, "xyz_files", map[string]string{"a.xyz": "1 2 3\n"})
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)

	got, err := FromRequest(httptest.NewRecorder(), req, "xyz_files", 1<<20)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a.xyz" {
		t.Fatalf("unexpected files %+v", got)
	}
}

func TestFromRequestOtherFieldIgnored(t *testing.T) {
	body, contentType := multipartBody(t, "file", map[string]string{"a.xyz": "1 2 3\n"})
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)

	got, err := FromRequest(httptest.NewRecorder(), req, "xyz_files", 0)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no files, got %d", len(got))
	}
}

func TestFromRequestTooLarge(t *testing.T) {
	body, contentType := multipartBody(t, "xyz_files", map[string]string{"big.xyz": string(bytes.Repeat([]byte("0 0 0\n"), 4096))})
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)

	_, err := FromRequest(httptest.NewRecorder(), req, "xyz_files", 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSelectedFileDigest(t *testing.T) {
	a := SelectedFile{Name: "a.xyz", Data: []byte("0 0 0\n")}
	renamed := SelectedFile{Name: "b.xyz", Data: []byte("0 0 0\n")}
	changed := SelectedFile{Name: "a.xyz", Data: []byte("0 0 1\n")}

	if a.Digest() != renamed.Digest() {
		t.Fatalf("expected digest to depend on contents only")
	}
	if a.Digest() == changed.Digest() {
		t.Fatalf("expected different digests for different contents")
	}
	if got := (SelectedFile{}).Digest(); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected digest of empty file %s", got)
	}
}
