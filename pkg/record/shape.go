package record

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Shape is the key casing variant a P21 endpoint uses for its records.
// Data views return snake_case (inv_mast_uid), entity APIs PascalCase
// (InvMastUid).
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeSnake
	ShapePascal
)

// String implements fmt.Stringer.
func (s Shape) String() string {
	switch s {
	case ShapeSnake:
		return "snake_case"
	case ShapePascal:
		return "PascalCase"
	default:
		return "unknown"
	}
}

// FieldName converts a canonical snake_case name to this shape's spelling.
func (s Shape) FieldName(name string) string {
	if s != ShapePascal {
		return name
	}
	return toPascal(name)
}

// DetectShape classifies the record by the casing of its keys.
func DetectShape(r Record) Shape {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r, &fields); err != nil {
		return ShapeUnknown
	}
	return shapeOf(fields)
}

func shapeOf(fields map[string]json.RawMessage) Shape {
	snake, pascal := 0, 0
	for key := range fields {
		if key == "" {
			continue
		}
		switch {
		case strings.Contains(key, "_"), unicode.IsLower(rune(key[0])):
			snake++
		case unicode.IsUpper(rune(key[0])):
			pascal++
		}
	}

	switch {
	case snake == 0 && pascal == 0:
		return ShapeUnknown
	case pascal > snake:
		return ShapePascal
	default:
		return ShapeSnake
	}
}

// toPascal maps inv_mast_uid to InvMastUid.
func toPascal(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
