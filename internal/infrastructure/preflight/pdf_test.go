package preflight

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

func TestInspectRejectsEmptyFile(t *testing.T) {
	_, err := NewInspector().Inspect("labs.pdf", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestInspectRejectsOversizedFile(t *testing.T) {
	inspector := &Inspector{maxSize: 16}
	_, err := inspector.Inspect("labs.pdf", bytes.Repeat([]byte("a"), 17))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestInspectRejectsWrongExtension(t *testing.T) {
	_, err := NewInspector().Inspect("labs.docx", []byte("%PDF-1.4 ..."))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), ".docx") {
		t.Fatalf("expected extension in error, got %v", err)
	}
}

func TestInspectRejectsMissingMagic(t *testing.T) {
	_, err := NewInspector().Inspect("labs.pdf", []byte("PK\x03\x04 zip content"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestInspectRejectsCorruptStructure(t *testing.T) {
	// Correct magic, garbage body. The parser must fail without panicking
	// through to the caller.
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0xde, 0xad}, 64)...)
	_, err := NewInspector().Inspect("labs.pdf", content)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
