// Package encode turns raw camera frames into the transport payload the
// recognition service expects: a JPEG resized to a fixed width, base64
// encoded and wrapped in a data URI. It is a pure transform with no
// network or session state; a failed encode costs one frame, never the
// session.
package encode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// DataURIPrefix is prepended to every encoded frame before sending.
const DataURIPrefix = "data:image/jpeg;base64,"

// Encoder produces transport-ready frame encodings
type Encoder struct {
	// TargetWidth is the width frames are resized to, preserving aspect ratio
	TargetWidth int
	// Quality is the JPEG quality factor 1-100
	Quality int
}

// New creates an Encoder. Zero values fall back to the defaults the
// recognition service was tuned for (500 px wide, quality 70).
func New(targetWidth, quality int) *Encoder {
	if targetWidth <= 0 {
		targetWidth = 500
	}
	if quality <= 0 {
		quality = 70
	}
	return &Encoder{TargetWidth: targetWidth, Quality: quality}
}

// EncodeFrame resizes and encodes a raw RGB24 frame, returning the
// data-URI payload.
func (e *Encoder) EncodeFrame(f *types.Frame) (string, error) {
	if f == nil {
		return "", fmt.Errorf("nil frame")
	}
	img, err := rgb24ToImage(f)
	if err != nil {
		return "", err
	}
	return e.encodeImage(img)
}

// EncodeFile reads a JPEG snapshot from disk, encodes it, and deletes
// the file. The delete happens on both the success and failure paths so
// temp snapshots never accumulate on device storage.
func (e *Encoder) EncodeFile(path string) (string, error) {
	defer os.Remove(path)

	fh, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return "", fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return e.encodeImage(img)
}

// encodeImage resizes, JPEG-encodes and wraps an image in a data URI
func (e *Encoder) encodeImage(img image.Image) (string, error) {
	resized := e.resize(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: e.Quality}); err != nil {
		return "", fmt.Errorf("jpeg encode failed: %w", err)
	}

	return DataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// resize scales the image so its width equals TargetWidth, preserving
// aspect ratio. Images already at or below the target width are passed
// through untouched.
func (e *Encoder) resize(img image.Image) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	if srcW <= e.TargetWidth {
		return img
	}

	dstH := srcH * e.TargetWidth / srcW
	dst := image.NewRGBA(image.Rect(0, 0, e.TargetWidth, dstH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

// rgb24ToImage wraps raw RGB24 bytes in an image.Image
func rgb24ToImage(f *types.Frame) (image.Image, error) {
	want := f.Width * f.Height * 3
	if len(f.Data) != want {
		return nil, fmt.Errorf("frame data size mismatch: got %d bytes, want %d (%dx%d RGB24)",
			len(f.Data), want, f.Width, f.Height)
	}

	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		src := i * 3
		dst := i * 4
		img.Pix[dst] = f.Data[src]
		img.Pix[dst+1] = f.Data[src+1]
		img.Pix[dst+2] = f.Data[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}
