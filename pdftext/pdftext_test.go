package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Jane\t Doe \n Software   Engineer ", "Jane Doe Software Engineer"},
		{"strips nul bytes", "Jane\x00Doe", "Jane Doe"},
		{"drops invalid utf8", "Jane \xff Doe", "Jane Doe"},
		{"empty input", "   \n\t  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.in); got != tt.want {
				t.Fatalf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractReaderRejectsNonPDF(t *testing.T) {
	data := []byte("plain text resume, definitely not a pdf")
	if _, err := ExtractReader(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("ExtractReader() accepted non-PDF bytes")
	}
}

func TestExtractMissingFile(t *testing.T) {
	if _, err := Extract("testdata/does-not-exist.pdf"); err == nil {
		t.Fatal("Extract() succeeded on a missing file")
	}
}

func TestExtractReaderTextlessPDF(t *testing.T) {
	data := buildTextlessPDF()
	_, err := ExtractReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("ExtractReader() error = %v, want ErrNoText", err)
	}
}

// buildTextlessPDF assembles a structurally valid single-page PDF with no
// content stream. Object offsets are recorded while writing so the xref
// table is always correct.
func buildTextlessPDF() []byte {
	var buf bytes.Buffer
	offsets := make([]int, 4)

	buf.WriteString("%PDF-1.4\n")
	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n")

	xref := buf.Len()
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < 4; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n")
	buf.WriteString(strconv.Itoa(xref))
	buf.WriteString("\n%%EOF\n")
	return buf.Bytes()
}
