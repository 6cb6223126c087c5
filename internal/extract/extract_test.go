package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Patient has no fever.</w:t></w:r></w:p>
<w:p><w:r><w:t>Denies cough.</w:t></w:r></w:p>
</w:body>
</w:document>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFromUpload_Docx(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/document.xml":            documentXML,
		"word/_rels/document.xml.rels": relsXML,
	})
	for _, mime := range []string{mimeDOCX, "application/zip", ""} {
		got, err := FromUpload(context.Background(), data, mime, "note.docx")
		if err != nil {
			t.Fatalf("mime %q: %v", mime, err)
		}
		if got != "Patient has no fever.\nDenies cough." {
			t.Fatalf("mime %q: unexpected text %q", mime, got)
		}
	}
}

func TestFromUpload_DocxWithoutRelationships(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": documentXML})
	got, err := FromUpload(context.Background(), data, mimeDOCX, "bare.docx")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.HasPrefix(got, "Patient has no fever.") {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestFromUpload_RealZipRejected(t *testing.T) {
	data := buildZip(t, map[string]string{"notes.txt": "hello"})
	_, err := FromUpload(context.Background(), data, "application/zip", "notes.zip")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "application/zip") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromUpload_PlainText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		mime string
		file string
		want string
	}{
		{name: "utf8", data: []byte("Fièvre"), mime: "text/plain; charset=utf-8", want: "Fièvre"},
		{name: "bom stripped", data: []byte("\xef\xbb\xbfnote"), mime: "text/plain", want: "note"},
		{name: "invalid bytes replaced", data: []byte("a\xffb"), mime: "text/plain", want: "a�b"},
		{name: "sniffed by extension", data: []byte("plain"), mime: "application/octet-stream", file: "n.txt", want: "plain"},
		{name: "sniffed by content", data: []byte("just words"), mime: "", file: "upload", want: "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromUpload(context.Background(), tt.data, tt.mime, tt.file)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromUpload_HTML(t *testing.T) {
	page := `<html><head><style>p{color:red}</style><script>var x = 1;</script></head>
<body><h1>Note</h1><p>Patient has no fever.</p><p>Denies cough.</p></body></html>`
	got, err := FromUpload(context.Background(), []byte(page), "text/html; charset=utf-8", "note.html")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if strings.Contains(got, "color") || strings.Contains(got, "var x") {
		t.Fatalf("script/style leaked into text: %q", got)
	}
	for _, want := range []string{"Note\n", "Patient has no fever.\n", "Denies cough."} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestFromUpload_UnsupportedImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	if _, err := FromUpload(context.Background(), png, "", "scan.png"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFromUpload_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FromUpload(ctx, []byte("x"), "text/plain", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		mime string
		file string
		data []byte
		want bool
	}{
		{mime: "text/plain", want: true},
		{mime: "text/html", want: true},
		{mime: "application/pdf", want: true},
		{mime: mimeDOCX, want: true},
		{mime: "", file: "note.md", want: true},
		{mime: "image/png", want: false},
		{mime: "application/octet-stream", file: "blob.bin", data: []byte{0x00, 0x01, 0x02}, want: false},
	}
	for _, tt := range tests {
		if got := Supported(tt.mime, tt.file, tt.data); got != tt.want {
			t.Fatalf("Supported(%q, %q) = %v, want %v", tt.mime, tt.file, got, tt.want)
		}
	}
}
