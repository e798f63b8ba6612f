package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	thumbSize    = 64
	templateSize = 256
)

// LocalEngine scores images in-process by comparing mean-centred grayscale thumbnails.
type LocalEngine struct{}

// NewLocalEngine returns the in-process engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// Similarity implements Engine.
func (LocalEngine) Similarity(ctx context.Context, probe, template []byte) (float64, error) {
	a, err := vectorize(probe)
	if err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b, err := vectorize(template)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadTemplate, err)
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	if dot < 0 || math.IsNaN(dot) {
		return 0, nil
	}
	if dot > 1 {
		dot = 1
	}
	return dot, nil
}

// vectorize returns a unit-length, zero-mean grayscale thumbnail. Flat images
// yield the zero vector.
func vectorize(raw []byte) ([]float64, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	thumb := imaging.Grayscale(imaging.Fill(img, thumbSize, thumbSize, imaging.Center, imaging.Lanczos))

	vec := make([]float64, 0, thumbSize*thumbSize)
	var sum float64
	for y := 0; y < thumbSize; y++ {
		for x := 0; x < thumbSize; x++ {
			v := float64(thumb.Pix[y*thumb.Stride+x*4])
			vec = append(vec, v)
			sum += v
		}
	}
	mean := sum / float64(len(vec))
	var norm float64
	for i := range vec {
		vec[i] -= mean
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// Decode parses an encoded image honouring EXIF orientation.
func Decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, ErrUndecodable
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

// NormalizeTemplate converts an enrollment photo to the stored template form:
// a grayscale PNG no larger than 256x256.
func NormalizeTemplate(raw []byte) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	out := imaging.Grayscale(imaging.Fit(img, templateSize, templateSize, imaging.Lanczos))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload accepts either a data URL ("data:image/jpeg;base64,....") or bare base64.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrUndecodable)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
	}
	return raw, nil
}
