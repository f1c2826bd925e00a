package overrides

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// colorValidator only runs the built-in colour tags; IsColor must not
	// depend on the validator that registers css_color.
	colorValidator   = validator.New()
	cssLengthPattern = regexp.MustCompile(`^(0|\d+(\.\d+)?(px|rem|em|%))$`)
	namedColors      = map[string]bool{
		"white": true, "black": true, "transparent": true, "currentcolor": true,
	}
)

// NewValidator returns a validator with the css_color and css_length tags
// registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("css_color", func(fl validator.FieldLevel) bool {
		return IsColor(fl.Field().String())
	})
	_ = v.RegisterValidation("css_length", func(fl validator.FieldLevel) bool {
		return IsLength(fl.Field().String())
	})
	return v
}

var defaultValidator = NewValidator()

// IsColor accepts hex, rgb()/rgba() and a few named colors.
func IsColor(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if namedColors[s] {
		return true
	}
	return colorValidator.Var(s, "hexcolor|rgb|rgba") == nil
}

// IsLength accepts a CSS length in px, rem, em or percent, or a bare 0.
func IsLength(s string) bool {
	return cssLengthPattern.MatchString(strings.TrimSpace(s))
}

// Validate checks every color and length in the set.
func (s *Set) Validate() error {
	if err := defaultValidator.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid override %s: %q", verrs[0].Namespace(), verrs[0].Value())
		}
		return err
	}
	return nil
}

// Validate checks the style fields.
func (b ButtonStyle) Validate() error {
	if err := defaultValidator.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid button %s: %q", strings.ToLower(verrs[0].Field()), verrs[0].Value())
		}
		return err
	}
	return nil
}
