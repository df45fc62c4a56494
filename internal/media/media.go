// Package media prepares chat attachments for upload: the file type is
// sniffed from its content and oversized photos are scaled down.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
)

const (
	MaxUploadSize       = 10 << 20 // 10 MB
	DefaultMaxDimension = 1600
	jpegQuality         = 85
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrEmptyFile        = errors.New("file is empty")
	ErrTooLarge         = errors.New("file is too large")
)

type Attachment struct {
	Name     string
	MimeType string
	Data     []byte

	// Pixel size of images, zero for video.
	Width  int
	Height int
}

// Prepare validates an attachment and returns what should be uploaded.
// Only images and videos are accepted. JPEG and PNG images larger than
// maxDim on either side are resized to fit, keeping the aspect ratio.
func Prepare(name string, data []byte, maxDim int) (Attachment, error) {
	if len(data) == 0 {
		return Attachment{}, ErrEmptyFile
	}
	if len(data) > MaxUploadSize {
		return Attachment{}, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, len(data), MaxUploadSize)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, name)
	}
	isImage := filetype.IsImage(data)
	if !isImage && !filetype.IsVideo(data) {
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, kind.MIME.Value)
	}

	if filepath.Ext(name) == "" {
		name += "." + kind.Extension
	}
	att := Attachment{
		Name:     name,
		MimeType: kind.MIME.Value,
		Data:     data,
	}
	if !isImage {
		return att, nil
	}

	var format imaging.Format
	switch kind.MIME.Value {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	default:
		return att, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Attachment{}, fmt.Errorf("decode %s: %w", name, err)
	}
	b := img.Bounds()
	att.Width, att.Height = b.Dx(), b.Dy()

	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return att, nil
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return Attachment{}, fmt.Errorf("encode %s: %w", name, err)
	}

	att.Data = buf.Bytes()
	att.Width, att.Height = resized.Bounds().Dx(), resized.Bounds().Dy()
	return att, nil
}
