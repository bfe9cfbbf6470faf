// Package composer renders cards and certificates from a template and student data.
// Rendering is deterministic and performs no I/O: all inputs and the output are
// in-memory byte buffers.
package composer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // background and photo decoders
	"image/png"
	"sort"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/darmiel/kartei/internal/core"
)

// ContentType of the rendered output.
const ContentType = "image/png"

// Input is everything a render depends on.
type Input struct {
	Template core.Template
	// Background holds the encoded background image (PNG or JPEG).
	Background []byte
	// Values maps field names to the text drawn at their placement.
	Values map[string]string
	// Photo holds the encoded portrait; required for cards.
	Photo []byte
}

const (
	// DefaultMaxPixels bounds width*height of decoded backgrounds and photos.
	DefaultMaxPixels = 40_000_000

	// DefaultFontSize applies to placements without a font size.
	DefaultFontSize = 16.0
)

// ErrTooManyPixels is returned for images above the pixel limit.
var ErrTooManyPixels = errors.New("image exceeds the pixel limit")

type Composer struct {
	encoder   png.Encoder
	maxPixels int
}

type Option func(*Composer)

// WithMaxPixels sets the pixel limit for decoded images.
func WithMaxPixels(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

func New(opts ...Option) *Composer {
	c := &Composer{
		encoder:   png.Encoder{CompressionLevel: png.DefaultCompression},
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Inspect returns the format of an encoded image without decoding its pixels.
// Images with more than maxPixels pixels are rejected; maxPixels <= 0 disables the check.
func Inspect(data []byte, maxPixels int) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return "", fmt.Errorf("%w: %dx%d is above %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}
	return format, nil
}

// Compose renders the artifact and returns PNG bytes.
func (c *Composer) Compose(in Input) ([]byte, error) {
	tpl := in.Template

	required := core.RequiredFields(tpl.Kind)
	if required == nil {
		return nil, &core.CompositionError{Reason: fmt.Sprintf("unsupported artifact kind '%s'", tpl.Kind)}
	}
	for _, name := range required {
		if _, ok := tpl.Fields[name]; !ok {
			return nil, &core.CompositionError{
				Field:  name,
				Reason: fmt.Sprintf("%s template has no placement for a required field", tpl.Kind),
			}
		}
	}

	// check values first so a data mismatch never produces a partial render
	names := sortedFieldNames(tpl.Fields)
	for _, name := range names {
		value, ok := in.Values[name]
		if !ok {
			return nil, &core.CompositionError{Field: name, Reason: "no value supplied for template field"}
		}
		if strings.TrimSpace(value) == "" {
			return nil, &core.CompositionError{Field: name, Reason: "value for template field is empty"}
		}
	}

	canvas, err := c.decodeCanvas(in.Background)
	if err != nil {
		return nil, err
	}

	if tpl.Kind == core.KindCard {
		if tpl.PhotoSpec == nil {
			return nil, &core.CompositionError{Field: "photo", Reason: "card template has no photo placement"}
		}
		if len(in.Photo) == 0 {
			return nil, &core.CompositionError{Field: "photo", Reason: "card requires a photo"}
		}
		if err := c.drawPhoto(canvas, *tpl.PhotoSpec, in.Photo); err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		if err := drawField(canvas, name, tpl.Fields[name], in.Values[name]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, canvas); err != nil {
		return nil, &core.CompositionError{Reason: "encoding output", Err: err}
	}
	return buf.Bytes(), nil
}

// decode decodes an image after checking its dimensions against the pixel limit.
func (c *Composer) decode(field string, data []byte) (image.Image, error) {
	if _, err := Inspect(data, c.maxPixels); err != nil {
		return nil, &core.CompositionError{Field: field, Reason: fmt.Sprintf("cannot decode %s image", field), Err: err}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &core.CompositionError{Field: field, Reason: fmt.Sprintf("cannot decode %s image", field), Err: err}
	}
	return img, nil
}

func sortedFieldNames(fields map[string]core.FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeCanvas decodes the background into a mutable RGBA image anchored at (0,0).
func (c *Composer) decodeCanvas(background []byte) (*image.RGBA, error) {
	if len(background) == 0 {
		return nil, &core.CompositionError{Field: "background", Reason: "background image is empty"}
	}
	src, err := c.decode("background", background)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(canvas, canvas.Bounds(), src, b.Min, xdraw.Src)
	return canvas, nil
}

func (c *Composer) drawPhoto(canvas *image.RGBA, spec core.PhotoSpec, photo []byte) error {
	if spec.Width <= 0 || spec.Height <= 0 {
		return &core.CompositionError{Field: "photo", Reason: "photo placement has no area"}
	}
	src, err := c.decode("photo", photo)
	if err != nil {
		return err
	}
	dst := image.Rect(spec.X, spec.Y, spec.X+spec.Width, spec.Y+spec.Height)
	xdraw.CatmullRom.Scale(canvas, dst, src, coverCrop(src.Bounds(), spec.Width, spec.Height), xdraw.Over, nil)
	return nil
}

// coverCrop returns the largest centered region of b with the aspect ratio w:h,
// so scaling it into a w x h rectangle fills the rectangle without distortion.
func coverCrop(b image.Rectangle, w, h int) image.Rectangle {
	sw, sh := b.Dx(), b.Dy()
	if sw*h > sh*w {
		// source is wider than target
		cw := sh * w / h
		x0 := b.Min.X + (sw-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := sw * h / w
	y0 := b.Min.Y + (sh-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}

func drawField(canvas *image.RGBA, name string, spec core.FieldSpec, value string) error {
	size := spec.FontSize
	if size == 0 {
		size = DefaultFontSize
	}
	col, err := ParseColor(spec.Color)
	if err != nil {
		return &core.CompositionError{Field: name, Reason: "invalid color", Err: err}
	}
	face, err := newFace(spec.FontFamily, size)
	if err != nil {
		return &core.CompositionError{Field: name, Reason: "cannot load font", Err: err}
	}
	defer func() {
		_ = face.Close()
	}()

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Color(col)),
		Face: face,
	}
	x, err := anchorX(spec, d.MeasureString(value))
	if err != nil {
		return &core.CompositionError{Field: name, Reason: err.Error()}
	}
	// y is the text baseline for every alignment
	d.Dot = fixed.Point26_6{X: x, Y: fixed.I(spec.Y)}
	d.DrawString(value)
	return nil
}

// anchorX returns the left edge of the text so that its bounding box is
// anchored at spec.X according to the alignment.
func anchorX(spec core.FieldSpec, width fixed.Int26_6) (fixed.Int26_6, error) {
	x := fixed.I(spec.X)
	switch spec.Align {
	case core.AlignLeft, "":
		return x, nil
	case core.AlignCenter:
		return x - width/2, nil
	case core.AlignRight:
		return x - width, nil
	default:
		return 0, fmt.Errorf("unknown alignment '%s'", spec.Align)
	}
}
