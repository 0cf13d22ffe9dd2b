// Package photo turns picked or captured files into uploadable JPEG/PNG images.
package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/adrium/goheif"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"

	"loo_review/internal/domain"
)

const jpegQuality = 85

var _ domain.PhotoPreparer = (*Preparer)(nil)

// Preparer sniffs, decodes, orients and downsizes photos.
type Preparer struct {
	maxDim int
}

// New returns a Preparer that fits images into maxDim x maxDim. maxDim <= 0 disables resizing.
func New(maxDim int) *Preparer { return &Preparer{maxDim: maxDim} }

// Checks if the MIME type indicates a HEIC or HEIF image format.
func isHeifLike(mimeType string) bool {
	t := strings.ToLower(mimeType)
	return strings.Contains(t, "heic") || strings.Contains(t, "heif")
}

// Prepare validates data as an image. JPEG and PNG within bounds are passed
// through untouched; anything else (HEIC, oversized, other decodable formats)
// is re-encoded as JPEG.
func (p *Preparer) Prepare(name string, data []byte) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("%w: empty photo", domain.ErrInvalidInput)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return domain.Image{}, fmt.Errorf("%w: %s is not an image (%s)", domain.ErrInvalidInput, name, mt.String())
	}

	var img image.Image
	var err error
	heif := isHeifLike(mt.String())
	if heif {
		img, err = decodeHeic(data)
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: cannot decode %s: %v", domain.ErrInvalidInput, name, err)
	}

	b := img.Bounds()
	fits := p.maxDim <= 0 || (b.Dx() <= p.maxDim && b.Dy() <= p.maxDim)
	if !heif && fits && (mt.Is("image/jpeg") || mt.Is("image/png")) {
		return domain.Image{Name: name, MIMEType: mt.String(), Data: data}, nil
	}

	if !fits {
		img = imaging.Fit(img, p.maxDim, p.maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return domain.Image{}, fmt.Errorf("encode %s: %w", name, err)
	}
	log.Debug().Str("file", name).Str("from", mt.String()).
		Int("w", img.Bounds().Dx()).Int("h", img.Bounds().Dy()).Msg("photo re-encoded")
	return domain.Image{Name: jpegName(name), MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}

// Coordinates reads the GPS position from the photo's EXIF block, if any.
func (p *Preparer) Coordinates(data []byte) (*domain.Coordinates, bool) {
	x, err := decodeExif(data)
	if err != nil {
		return nil, false
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return nil, false
	}
	c := domain.Coordinates{Lat: lat, Lng: lng}
	if !c.Valid() {
		return nil, false
	}
	return &c, true
}

func decodeHeic(data []byte) (image.Image, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC: %w", err)
	}
	return applyOrientation(img, data), nil
}

// decodeExif handles both JPEG/TIFF input and the EXIF item embedded in HEIC.
func decodeExif(data []byte) (*exif.Exif, error) {
	if isHeifLike(mimetype.Detect(data).String()) {
		raw, err := goheif.ExtractExif(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return exif.Decode(bytes.NewReader(raw))
	}
	return exif.Decode(bytes.NewReader(data))
}

// applyOrientation rotates/flips img per its EXIF orientation tag (1..8).
func applyOrientation(img image.Image, data []byte) image.Image {
	x, err := decodeExif(data)
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orient, err := tag.Int(0)
	if err != nil {
		return img
	}
	switch orient {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func jpegName(name string) string {
	if name == "" {
		return "photo.jpg"
	}
	if ext := filepath.Ext(name); ext != "" {
		return strings.TrimSuffix(name, ext) + ".jpg"
	}
	return name + ".jpg"
}
