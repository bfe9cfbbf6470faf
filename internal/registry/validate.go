package registry

import (
	"fmt"
	"math"
	"strings"

	"github.com/darmiel/kartei/internal/core"
)

// Validate checks a template before it is stored.
func Validate(tpl core.Template) error {
	if strings.TrimSpace(tpl.CourseID) == "" {
		return &core.ValidationError{Field: "course_id", Reason: "must not be empty"}
	}
	if _, err := core.ParseKind(string(tpl.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(tpl.BackgroundRef) == "" {
		return &core.ValidationError{Field: "background_ref", Reason: "must not be empty"}
	}

	for name, spec := range tpl.Fields {
		if strings.TrimSpace(name) == "" {
			return &core.ValidationError{Field: "fields", Reason: "field name must not be empty"}
		}
		if math.IsNaN(spec.FontSize) || math.IsInf(spec.FontSize, 0) {
			return &core.ValidationError{Field: fieldPath(name, "font_size"), Reason: "must be finite"}
		}
		if spec.FontSize < 0 {
			return &core.ValidationError{Field: fieldPath(name, "font_size"), Reason: "must not be negative"}
		}
		switch spec.Align {
		case "", core.AlignLeft, core.AlignCenter, core.AlignRight:
		default:
			return &core.ValidationError{
				Field:  fieldPath(name, "align"),
				Reason: fmt.Sprintf("unknown alignment '%s'", spec.Align),
			}
		}
	}

	if tpl.Kind == core.KindCard {
		if tpl.PhotoSpec == nil {
			return &core.ValidationError{Field: "photo_spec", Reason: "card templates require a photo placement"}
		}
		if tpl.PhotoSpec.Width <= 0 || tpl.PhotoSpec.Height <= 0 {
			return &core.ValidationError{Field: "photo_spec", Reason: "width and height must be positive"}
		}
	}

	for _, name := range core.RequiredFields(tpl.Kind) {
		if _, ok := tpl.Fields[name]; !ok {
			return &core.ValidationError{
				Field:  "fields." + name,
				Reason: fmt.Sprintf("required for %s templates", tpl.Kind),
			}
		}
	}
	return nil
}

func fieldPath(name, attr string) string {
	return fmt.Sprintf("fields.%s.%s", name, attr)
}
