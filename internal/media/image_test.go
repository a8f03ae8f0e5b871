package media_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromarket/price-tracker/internal/media"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, G: 120, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeURI(t *testing.T, uri string) image.Image {
	t.Helper()
	_, payload, ok := strings.Cut(uri, ",")
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestNormalizeImage_EmptyAndURL(t *testing.T) {
	got, err := media.NormalizeImage("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = media.NormalizeImage("https://cdn.example.com/rice.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/rice.jpg", got)
}

func TestNormalizeImage_Rejects(t *testing.T) {
	for _, ref := range []string{
		"ftp://example.com/rice.jpg",
		"rice.jpg",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,not-base64!!",
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not an image")),
	} {
		_, err := media.NormalizeImage(ref)
		assert.True(t, media.IsInvalid(err), "ref %.30q: err = %v", ref, err)
	}
}

func TestNormalizeImage_ReencodesAsJPEG(t *testing.T) {
	got, err := media.NormalizeImage(pngDataURI(t, 40, 30))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "data:image/jpeg;base64,"))

	img := decodeURI(t, got)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}

func TestNormalizeImage_BoundsLargeImages(t *testing.T) {
	got, err := media.NormalizeImage(pngDataURI(t, 2*media.MaxSide, media.MaxSide/2))
	require.NoError(t, err)

	img := decodeURI(t, got)
	assert.Equal(t, media.MaxSide, img.Bounds().Dx())
	assert.Equal(t, media.MaxSide/4, img.Bounds().Dy())
}

// hugeHeaderPNG is a tiny PNG whose header declares w×h pixels.
func hugeHeaderPNG(t *testing.T, w, h uint32) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)), imaging.PNG))
	raw := buf.Bytes()
	require.Equal(t, "IHDR", string(raw[12:16]))
	binary.BigEndian.PutUint32(raw[16:20], w)
	binary.BigEndian.PutUint32(raw[20:24], h)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestNormalizeImage_RejectsOversizedDimensions(t *testing.T) {
	uri := hugeHeaderPNG(t, 50000, 50000)
	assert.Less(t, len(uri), 1024)

	_, err := media.NormalizeImage(uri)
	assert.ErrorIs(t, err, media.ErrImageTooLarge)
	assert.True(t, media.IsInvalid(err))
}

func TestNormalizeImage_AcceptsWideImage(t *testing.T) {
	out, err := media.NormalizeImage(pngDataURI(t, 1024, 8))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "data:image/jpeg;base64,"))
}
