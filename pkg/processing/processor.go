package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/types"
)

// Output formats
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Default preprocessing bounds
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 0.8
	DefaultMaxPixels    = 50_000_000
	maxDownloadBytes    = 32 << 20
)

// Config holds preprocessing options that do not change per call
type Config struct {
	Format       string
	MinDimension int
	// MaxPixels caps width*height read from the image header before
	// decoding. Zero selects DefaultMaxPixels; negative disables the cap.
	MaxPixels int
}

// Processor turns user photos into compact payloads for the vision model
type Processor struct {
	config     Config
	httpClient *http.Client
}

// NewProcessor creates a processor that re-encodes to JPEG
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{Format: FormatJPEG})
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	if config.Format == "" {
		config.Format = FormatJPEG
	}
	if config.MaxPixels == 0 {
		config.MaxPixels = DefaultMaxPixels
	}
	return &Processor{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Prepare decodes raw, bounds its longer edge to maxDimension and re-encodes
// it at the given quality in (0,1]. A maxDimension <= 0 keeps the original
// size. Images are never upscaled and raw is never modified.
func (p *Processor) Prepare(raw []byte, maxDimension int, quality float64) (types.EncodedImage, error) {
	if len(raw) == 0 {
		return types.EncodedImage{}, apperrors.NewInvalidInputError("empty image data", nil)
	}
	if quality <= 0 || quality > 1 || math.IsNaN(quality) {
		return types.EncodedImage{}, apperrors.NewInvalidInputError(fmt.Sprintf("quality %.2f outside (0,1]", quality), nil)
	}
	if mt := mimetype.Detect(raw); !strings.HasPrefix(mt.String(), "image/") {
		return types.EncodedImage{}, apperrors.NewInvalidInputError("not an image: "+mt.String(), nil)
	}

	cfg, err := p.decodeConfigFromBytes(raw)
	if err != nil {
		return types.EncodedImage{}, apperrors.NewDecodeError("decode header", err)
	}
	if limit := p.config.MaxPixels; limit > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return types.EncodedImage{}, apperrors.NewInvalidInputError(
			fmt.Sprintf("image too large: %dx%d (maximum: %d pixels)", cfg.Width, cfg.Height, limit), nil)
	}

	img, err := p.decodeImageFromBytes(raw)
	if err != nil {
		return types.EncodedImage{}, apperrors.NewDecodeError("decode", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return types.EncodedImage{}, apperrors.NewDecodeError(fmt.Sprintf("empty image %dx%d", b.Dx(), b.Dy()), nil)
	}
	if minDim := p.config.MinDimension; minDim > 0 && (b.Dx() < minDim || b.Dy() < minDim) {
		return types.EncodedImage{}, apperrors.NewInvalidInputError(
			fmt.Sprintf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), minDim), nil)
	}

	canvas := p.render(img, maxDimension)
	return p.encode(canvas, quality)
}

// TargetSize returns the output dimensions Prepare uses for a w x h input
func TargetSize(w, h, maxDimension int) (int, int) {
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return w, h
	}
	if w >= h {
		return maxDimension, int(math.Max(1, math.Floor(float64(h)*float64(maxDimension)/float64(w)+0.5)))
	}
	return int(math.Max(1, math.Floor(float64(w)*float64(maxDimension)/float64(h)+0.5))), maxDimension
}

// render resizes img if needed and paints it onto an opaque canvas
func (p *Processor) render(img image.Image, maxDimension int) *image.NRGBA {
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), maxDimension)
	if w != b.Dx() || h != b.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	canvas := imaging.New(w, h, color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func (p *Processor) encode(img *image.NRGBA, quality float64) (types.EncodedImage, error) {
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}

	var buf bytes.Buffer
	var mimeType string
	switch strings.ToLower(p.config.Format) {
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(q)}); err != nil {
			return types.EncodedImage{}, apperrors.NewEncodeError("webp", err)
		}
		mimeType = "image/webp"
	case FormatJPEG, "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return types.EncodedImage{}, apperrors.NewEncodeError("jpeg", err)
		}
		mimeType = "image/jpeg"
	default:
		return types.EncodedImage{}, apperrors.NewEncodeError("unsupported output format "+p.config.Format, nil)
	}
	if buf.Len() == 0 {
		return types.EncodedImage{}, apperrors.NewEncodeError("encoder produced no data", nil)
	}

	return types.EncodedImage{
		Data:     buf.Bytes(),
		MIMEType: mimeType,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}, nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, err
}

func (p *Processor) decodeConfigFromBytes(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return cfg, nil
	}
	if wcfg, werr := webp.DecodeConfig(bytes.NewReader(data)); werr == nil {
		return wcfg, nil
	}
	return image.Config{}, err
}

// LoadFile reads raw photo bytes from disk
func (p *Processor) LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("read "+path, err)
	}
	return data, nil
}

// LoadURL downloads raw photo bytes from an http(s) URL
func (p *Processor) LoadURL(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("invalid URL", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, apperrors.NewInvalidInputError(
			fmt.Sprintf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("failed to create request", err)
	}
	req.Header.Set("User-Agent", "Pool-Coach/1.0 (+https://github.com/menta2k/pool-coach)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("failed to download image: HTTP %d", resp.StatusCode), nil)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("URL does not point to an image (Content-Type: %s)", ct), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, apperrors.NewInvalidInputError("failed to read image data", err)
	}
	return data, nil
}

// LoadSmart loads from a URL or a file path
func (p *Processor) LoadSmart(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadURL(ctx, source)
	}
	return p.LoadFile(source)
}
