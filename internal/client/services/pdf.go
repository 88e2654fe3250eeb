package services

import (
	"bytes"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/docker/go-units"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	DefaultMaxPDFSize  = 100 << 20
	DefaultPDFWarnSize = 10 << 20
)

// PDFFile is a PDF to upload. ContentType may be empty when the name ends
// in .pdf.
type PDFFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f PDFFile) Size() int64 {
	return int64(len(f.Data))
}

// PDFValidation is the outcome of ValidatePDF.
type PDFValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidatePDF checks type and size limits. A file counts as a PDF when its
// content type is application/pdf or its name ends in .pdf.
func ValidatePDF(f PDFFile, maxSize, warnSize int64) PDFValidation {
	v := PDFValidation{Valid: true, Errors: []string{}, Warnings: []string{}}
	fail := func(msg string) {
		v.Valid = false
		v.Errors = append(v.Errors, msg)
	}

	if f.ContentType != common.PDFMimeType && !strings.HasSuffix(strings.ToLower(f.Name), ".pdf") {
		fail("File must be a PDF")
	}
	if len(f.Data) == 0 {
		fail("File is empty")
	}
	if maxSize > 0 && f.Size() > maxSize {
		fail("File size must be less than " + units.BytesSize(float64(maxSize)))
	}
	if warnSize > 0 && f.Size() > warnSize {
		v.Warnings = append(v.Warnings, "Large file detected. Upload may take some time.")
	}
	return v
}

func (v PDFValidation) err() error {
	if v.Valid {
		return nil
	}
	return common.Validationf("%s", strings.Join(v.Errors, ", "))
}

// PageCount returns the number of pages in a PDF document.
func PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
}
