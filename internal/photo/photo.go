// Package photo loads the user's picture and normalises it for printing:
// EXIF orientation applied, re-encoded as JPEG, addressable as a data URI.
package photo

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"idsheet/internal/sheet"
)

// ErrUndecodable signals bytes that are not a supported image. It matches
// sheet.ErrMissingImage under errors.Is.
var ErrUndecodable = fmt.Errorf("%w: undecodable image data", sheet.ErrMissingImage)

// ErrTooLarge signals an upload above the configured byte limit.
var ErrTooLarge = errors.New("image exceeds allowed size")

// ErrTooManyPixels signals an image whose header declares more pixels than
// the configured limit. It is returned before any pixel data is decoded.
var ErrTooManyPixels = errors.New("image dimensions exceed allowed size")

// DefaultQuality matches the compression used for print exports.
const DefaultQuality = 80

// Photo is a decoded, orientation-corrected picture plus its JPEG encoding.
type Photo struct {
	Image  image.Image
	JPEG   []byte
	Width  int
	Height int
	Hash   string
}

// Options tune Load. Zero limits disable the corresponding check.
type Options struct {
	MaxBytes  int
	MaxPixels int
	Quality   int
}

// Load reads r fully, checks its declared dimensions and decodes it.
// An empty reader yields sheet.ErrMissingImage.
func Load(r io.Reader, opts Options) (*Photo, error) {
	raw, err := ReadAll(r, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	if _, err := CheckSize(raw, opts.MaxPixels); err != nil {
		return nil, err
	}
	return Decode(raw, opts.Quality)
}

// ReadAll reads at most maxBytes from r. More data yields ErrTooLarge.
func ReadAll(r io.Reader, maxBytes int) ([]byte, error) {
	if r == nil {
		return nil, sheet.ErrMissingImage
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, int64(maxBytes)+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return nil, sheet.ErrMissingImage
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, ErrTooLarge
	}
	return raw, nil
}

// CheckSize reads only the image header and rejects images with more than
// maxPixels pixels.
func CheckSize(raw []byte, maxPixels int) (image.Config, error) {
	if len(raw) == 0 {
		return image.Config{}, sheet.ErrMissingImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, ErrUndecodable
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return image.Config{}, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// Hash is the content hash of the uploaded bytes, used in cache keys.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// LoadFile is Load for a path on disk.
func LoadFile(path string, opts Options) (*Photo, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrMissingImage, path)
		}
		return nil, err
	}
	defer f.Close()
	return Load(f, opts)
}

// Decode turns raw bytes into a Photo, applying EXIF orientation. It does not
// limit dimensions; untrusted input goes through Load or CheckSize first.
func Decode(raw []byte, quality int) (*Photo, error) {
	if len(raw) == 0 {
		return nil, sheet.ErrMissingImage
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrUndecodable
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Photo{
		Image:  img,
		JPEG:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Hash:   Hash(raw),
	}, nil
}

// DataURI embeds the JPEG encoding so a renderer needs no file access.
func (p *Photo) DataURI() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(p.JPEG)
}

// Ref is the photo as a sheet image reference.
func (p *Photo) Ref() sheet.ImageRef {
	return sheet.ImageRef(p.DataURI())
}

// AspectRatio is width over height.
func (p *Photo) AspectRatio() float64 {
	if p.Height == 0 {
		return 0
	}
	return float64(p.Width) / float64(p.Height)
}
