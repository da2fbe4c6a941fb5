// Package upload inspects uploaded files and derives their object-store keys.
package upload

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// Kind is the expected class of an uploaded file.
type Kind int

const (
	KindImage Kind = iota
	KindPDF
)

func (k Kind) String() string {
	if k == KindPDF {
		return "pdf"
	}
	return "image"
}

// ErrRejected marks files whose content does not match the expected kind.
var ErrRejected = errors.New("upload rejected")

// File is an uploaded file that can be read more than once.
// multipart.File satisfies it.
type File interface {
	io.Reader
	io.ReaderAt
}

// Part is one uploaded file as received from a client.
type Part struct {
	Filename string
	Size     int64
	File     File
}

// Reader returns a fresh reader over the whole part.
func (p Part) Reader() io.Reader {
	return io.NewSectionReader(p.File, 0, p.Size)
}

// Inspect sniffs the content of p and returns its MIME type. Images must be
// raster formats; SVG can carry script. PDFs must also parse and contain at
// least one page.
func Inspect(p Part, kind Kind) (string, error) {
	if p.File == nil || p.Size <= 0 {
		return "", fmt.Errorf("%w: empty %s", ErrRejected, kind)
	}
	mt, err := mimetype.DetectReader(p.Reader())
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	switch kind {
	case KindImage:
		if !mt.Is("image/jpeg") && !mt.Is("image/png") && !mt.Is("image/gif") && !mt.Is("image/webp") {
			return "", fmt.Errorf("%w: %s is not a JPEG, PNG, GIF or WebP image (%s)", ErrRejected, p.Filename, mt.String())
		}
		return mt.String(), nil
	case KindPDF:
		if !mt.Is("application/pdf") {
			return "", fmt.Errorf("%w: %s is not a PDF (%s)", ErrRejected, p.Filename, mt.String())
		}
		pages, err := countPages(p.File, p.Size)
		if err != nil {
			return "", fmt.Errorf("%w: %s is not a readable PDF: %v", ErrRejected, p.Filename, err)
		}
		if pages < 1 {
			return "", fmt.Errorf("%w: %s has no pages", ErrRejected, p.Filename)
		}
		return "application/pdf", nil
	default:
		return "", fmt.Errorf("unknown upload kind %d", kind)
	}
}

// countPages parses the PDF trailer. The parser panics on some malformed input.
func countPages(r io.ReaderAt, size int64) (pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

// ObjectKey builds "<ownerID>/<unix-millis>-<safe-filename>".
func ObjectKey(ownerID string, now time.Time, filename string) string {
	return ownerID + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + SafeFilename(filename)
}

// SafeFilename replaces every character outside [A-Za-z0-9._-] with '_'.
func SafeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// ParseTags splits a comma-separated tag list, trimming entries and dropping empties.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
