package composer

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultColor is used when a field does not specify one.
var DefaultColor = color.NRGBA{A: 0xff}

// ParseColor accepts "#rgb", "#rrggbb" and "#rrggbbaa".
func ParseColor(raw string) (color.NRGBA, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultColor, nil
	}
	if !strings.HasPrefix(raw, "#") {
		raw = "#" + raw
	}

	alpha := uint8(0xff)
	if len(raw) == 9 {
		a, err := strconv.ParseUint(raw[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in color '%s': %w", raw, err)
		}
		alpha = uint8(a)
		raw = raw[:7]
	}
	if len(raw) != 4 && len(raw) != 7 {
		return color.NRGBA{}, fmt.Errorf("invalid color '%s': expected #rgb, #rrggbb or #rrggbbaa", raw)
	}

	c, err := colorful.Hex(raw)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color '%s': %w", raw, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
