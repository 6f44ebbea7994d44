package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const jpegDataURIPrefix = "data:image/jpeg;base64,"

// Normalize decodes an image, flattens any transparency onto white, shrinks it
// to fit within maxSize x maxSize (never enlarging) and re-encodes it as a
// JPEG data URI with the given quality.
func Normalize(data []byte, maxSize, quality int) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxSize)
	if w == 0 || h == 0 {
		return "", fmt.Errorf("image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return jpegDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin scales (w, h) down to fit a maxSize square keeping the aspect ratio.
func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	scale := math.Min(float64(maxSize)/float64(w), float64(maxSize)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return min(nw, maxSize), min(nh, maxSize)
}

func clampQuality(q int) int {
	if q <= 0 {
		return jpeg.DefaultQuality
	}
	return min(q, 100)
}
