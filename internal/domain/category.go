package domain

import "strings"

// Category is the canonical garment class understood by the try-on backend.
type Category string

const (
	CategoryUpperBody Category = "upper_body"
	CategoryLowerBody Category = "lower_body"
	CategoryDress     Category = "dress"
)

var categoryAliases = map[string]Category{
	"upper_body": CategoryUpperBody,
	"upperbody":  CategoryUpperBody,
	"upper-body": CategoryUpperBody,
	"top":        CategoryUpperBody,
	"shirt":      CategoryUpperBody,
	"lower_body": CategoryLowerBody,
	"lowerbody":  CategoryLowerBody,
	"lower-body": CategoryLowerBody,
	"bottom":     CategoryLowerBody,
	"pants":      CategoryLowerBody,
	"dress":      CategoryDress,
	"full_body":  CategoryDress,
	"fullbody":   CategoryDress,
}

// NormalizeCategory maps a caller-supplied garment label onto one of the
// three canonical categories. Unknown labels fall back to upper_body.
func NormalizeCategory(raw string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return CategoryUpperBody
}

// BackendLabel is the category spelling used by the OOTDiffusion space.
func (c Category) BackendLabel() string {
	switch c {
	case CategoryLowerBody:
		return "Lower-body"
	case CategoryDress:
		return "Dress"
	default:
		return "Upper-body"
	}
}

func (c Category) String() string {
	return string(c)
}
