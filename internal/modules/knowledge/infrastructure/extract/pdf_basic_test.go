package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicPdfTextExtractsStreamStrings(t *testing.T) {
	data := []byte("%PDF-1.4\nstream\nBT (Hello) Tj (World) Tj ET\nendstream\ntrailer")
	got := BasicPdfText(data, "doc.pdf")
	assert.Equal(t, "Hello World", got)
}

func TestBasicPdfTextUnescapes(t *testing.T) {
	data := []byte(`stream (Line one\nLine two) (inner \(text) (back\\slash) endstream`)
	got := BasicPdfText(data, "doc.pdf")
	assert.Contains(t, got, "Line one\nLine two")
	assert.Contains(t, got, "inner (text")
	assert.Contains(t, got, `back\slash`)
}

func TestBasicPdfTextMultipleStreams(t *testing.T) {
	data := []byte("stream (first) endstream junk stream (second) endstream")
	got := BasicPdfText(data, "doc.pdf")
	assert.Contains(t, got, "first")
	assert.Contains(t, got, "second")
}

func TestBasicPdfTextFallbackMessage(t *testing.T) {
	data := []byte("%PDF-1.4 binary image data with no text operators")
	got := BasicPdfText(data, "scan.pdf")
	assert.Contains(t, got, "[Document: scan.pdf]")
	assert.Contains(t, got, "Unable to extract text content")
	assert.Contains(t, got, "MB")
}

func TestBasicPdfTextIgnoresBlankStrings(t *testing.T) {
	data := []byte("stream (   ) (real) endstream")
	got := BasicPdfText(data, "doc.pdf")
	assert.Equal(t, "real", strings.TrimSpace(got))
}
