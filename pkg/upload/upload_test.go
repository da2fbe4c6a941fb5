package upload_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/pkg/upload"
	"bookstore/pkg/upload/uploadtest"
)

func TestInspectAcceptsPDFWithPages(t *testing.T) {
	ct, err := upload.Inspect(*uploadtest.Part("book.pdf", uploadtest.PDF(2)), upload.KindPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
}

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := upload.Inspect(*uploadtest.Part("book.pdf", []byte("just some text pretending to be a pdf")), upload.KindPDF)
	assert.True(t, errors.Is(err, upload.ErrRejected))
}

func TestInspectRejectsBrokenPDF(t *testing.T) {
	broken := append([]byte("%PDF-1.4\n"), make([]byte, 200)...)
	_, err := upload.Inspect(*uploadtest.Part("broken.pdf", broken), upload.KindPDF)
	assert.True(t, errors.Is(err, upload.ErrRejected))
}

func TestInspectImage(t *testing.T) {
	ct, err := upload.Inspect(*uploadtest.Part("cover.png", uploadtest.PNG), upload.KindImage)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, err = upload.Inspect(*uploadtest.Part("cover.png", uploadtest.PDF(1)), upload.KindImage)
	assert.True(t, errors.Is(err, upload.ErrRejected))
}

func TestInspectRejectsSVGImage(t *testing.T) {
	_, err := upload.Inspect(*uploadtest.Part("cover.svg", uploadtest.SVG), upload.KindImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload.ErrRejected))
	assert.Contains(t, err.Error(), "image/svg+xml")
}

func TestInspectRejectsEmpty(t *testing.T) {
	_, err := upload.Inspect(*uploadtest.Part("empty.pdf", nil), upload.KindPDF)
	assert.True(t, errors.Is(err, upload.ErrRejected))
}

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1718000000123)
	assert.Equal(t, "user-1/1718000000123-My_Book__v2_.pdf", upload.ObjectKey("user-1", now, "My Book (v2).pdf"))
	assert.Equal(t, "user-1/1718000000123-passwd", upload.ObjectKey("user-1", now, "../../etc/passwd"))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b.pdf", upload.SafeFilename(`C:\docs\a b.pdf`))
	assert.Equal(t, "file", upload.SafeFilename("  "))
	assert.Equal(t, "___.png", upload.SafeFilename("කවර.png"))
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"fiction", "sinhala", "short stories"}, upload.ParseTags(" fiction, sinhala,,  short stories ,"))
	assert.Equal(t, []string{}, upload.ParseTags(""))
}
