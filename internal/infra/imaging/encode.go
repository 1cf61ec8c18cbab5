package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// TargetPixels is the pixel budget the endpoint expects inputs to be
// scaled to before submission.
const TargetPixels = 1_000_000

// PrepareInput reads the image at path, scales it to roughly one
// megapixel preserving aspect ratio, re-encodes it as lossless PNG and
// returns the base64 form ready for the submit payload.
func PrepareInput(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open input image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode input image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Resize(img, TargetPixels)); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Resize scales img so its total pixel count lands near target while
// keeping the aspect ratio. Dimensions are truncated, not rounded, so
// e.g. a 1200x800 image becomes 1224x816.
func Resize(img image.Image, target int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	nw := int(math.Sqrt(float64(target) * float64(w) / float64(h)))
	nh := int(math.Sqrt(float64(target) * float64(h) / float64(w)))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
