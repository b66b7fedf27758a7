// Package outputvalidator performs the pure magic-byte and size checks an
// artifact must pass before it is persisted; a failure here is always a
// permanent, non-retryable classification.
package outputvalidator

import "bytes"

const sizeWarningThreshold = 256

var (
	pdfSignature  = []byte("%PDF-")
	pngSignature  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSOI       = []byte{0xFF, 0xD8}
	jpegEOI       = []byte{0xFF, 0xD9}
)

// Result is the outcome of validating one artifact's bytes.
type Result struct {
	OK             bool
	Errors         []string
	Warnings       []string
	Size           int
	FormatVerified bool
}

// ImageFormat distinguishes PNG from JPEG image output.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// ValidatePDF checks a PDF artifact's magic bytes and size.
func ValidatePDF(data []byte) Result {
	r := Result{Size: len(data)}
	if !bytes.HasPrefix(data, pdfSignature) {
		r.Errors = append(r.Errors, "missing %PDF- signature")
	}
	finish(&r)
	return r
}

// ValidateImage checks a PNG or JPEG artifact's magic bytes and size.
func ValidateImage(data []byte, format ImageFormat) Result {
	r := Result{Size: len(data)}
	switch format {
	case FormatPNG:
		if !bytes.HasPrefix(data, pngSignature) {
			r.Errors = append(r.Errors, "missing PNG signature")
		}
	case FormatJPEG:
		if !bytes.HasPrefix(data, jpegSOI) {
			r.Errors = append(r.Errors, "missing JPEG SOI marker")
		}
		if len(data) < 2 || !bytes.HasSuffix(data, jpegEOI) {
			r.Warnings = append(r.Warnings, "missing JPEG EOI marker, output may be truncated")
		}
	default:
		r.Errors = append(r.Errors, "unknown image format: "+string(format))
	}
	finish(&r)
	return r
}

func finish(r *Result) {
	if r.Size < sizeWarningThreshold {
		r.Warnings = append(r.Warnings, "output is under 256 bytes")
	}
	r.OK = len(r.Errors) == 0
	r.FormatVerified = r.OK
}
