// Package media normalises commodity images. A commodity image is either an
// http(s) URL, stored as given, or an inline data URI, which is decoded,
// bounded and re-encoded as JPEG so stored documents stay small.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxSide is the longest edge kept for inline images.
	MaxSide = 512

	// MaxInlineBytes bounds the decoded payload of a data URI.
	MaxInlineBytes = 4 << 20

	// MaxPixels bounds width×height as declared by the image header, which
	// sizes the pixel buffer allocated on decode.
	MaxPixels = 4096 * 4096

	jpegQuality = 80
)

var (
	ErrInvalidImage  = errors.New("media: image must be an http(s) URL or an image data URI")
	ErrImageTooLarge = errors.New("media: inline image too large")
)

// NormalizeImage validates ref and returns the value to store. The empty
// string is allowed and returned unchanged.
func NormalizeImage(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "data:"):
		return normalizeDataURI(ref)
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %.40q", ErrInvalidImage, ref)
	}
	return ref, nil
}

func normalizeDataURI(ref string) (string, error) {
	header, payload, ok := strings.Cut(ref, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return "", fmt.Errorf("%w: malformed data URI", ErrInvalidImage)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxInlineBytes {
		return "", fmt.Errorf("%w: over %d bytes", ErrImageTooLarge, MaxInlineBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", fmt.Errorf("%w: %dx%d pixels", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() > MaxSide || b.Dy() > MaxSide {
		img = imaging.Fit(img, MaxSide, MaxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// IsInvalid reports whether err was caused by a rejected image.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrImageTooLarge)
}
