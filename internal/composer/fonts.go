package composer

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const DefaultFontFamily = "goregular"

// embedded font families; fonts are compiled into the binary so renders do
// not depend on what is installed on the host.
var fontSources = map[string][]byte{
	"goregular": goregular.TTF,
	"gobold":    gobold.TTF,
	"goitalic":  goitalic.TTF,
	"gomedium":  gomedium.TTF,
	"gomono":    gomono.TTF,
}

var fontAliases = map[string]string{
	"":        DefaultFontFamily,
	"go":      DefaultFontFamily,
	"regular": DefaultFontFamily,
	"bold":    "gobold",
	"italic":  "goitalic",
	"medium":  "gomedium",
	"mono":    "gomono",
}

var (
	parsedMu    sync.Mutex
	parsedFonts = make(map[string]*opentype.Font)
)

// FontFamilies returns the names accepted in FieldSpec.FontFamily.
func FontFamilies() []string {
	names := make([]string, 0, len(fontSources)+len(fontAliases))
	for k := range fontSources {
		names = append(names, k)
	}
	for k := range fontAliases {
		if k != "" {
			names = append(names, k)
		}
	}
	return names
}

func resolveFamily(family string) (string, error) {
	family = strings.ToLower(strings.TrimSpace(family))
	if alias, ok := fontAliases[family]; ok {
		family = alias
	}
	if _, ok := fontSources[family]; !ok {
		return "", fmt.Errorf("unknown font family '%s'", family)
	}
	return family, nil
}

func parsedFont(family string) (*opentype.Font, error) {
	parsedMu.Lock()
	defer parsedMu.Unlock()

	if f, ok := parsedFonts[family]; ok {
		return f, nil
	}
	f, err := opentype.Parse(fontSources[family])
	if err != nil {
		return nil, fmt.Errorf("parsing font '%s': %w", family, err)
	}
	parsedFonts[family] = f
	return f, nil
}

// newFace returns a fresh face; faces are not safe for concurrent use,
// the parsed font is.
func newFace(family string, size float64) (font.Face, error) {
	name, err := resolveFamily(family)
	if err != nil {
		return nil, err
	}
	f, err := parsedFont(name)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
