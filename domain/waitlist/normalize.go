package waitlist

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/loppilove/waitlist-api/pkg/constants"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Deliberately loose: something@something.something with no whitespace.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

type emailInput struct {
	Email string `json:"email" validate:"required,max=254,waitlist_email"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("waitlist_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// NormalizeEmail validates the trimmed address and returns its canonical
// form (NFC, lowercase). The error is a validator.ValidationErrors.
//
// Lowercasing can lengthen an address (U+0130 becomes two runes), so the
// canonical form is validated again against the stored column width.
func NormalizeEmail(raw string) (string, error) {
	input := emailInput{Email: strings.TrimSpace(raw)}
	if err := validate.Struct(input); err != nil {
		return "", err
	}

	// cases.Caser is stateful, so one per call.
	canonical := emailInput{Email: cases.Lower(language.Und).String(norm.NFC.String(input.Email))}
	if err := validate.Struct(canonical); err != nil {
		return "", err
	}
	return canonical.Email, nil
}

func NormalizeSource(raw string) string {
	source := strings.TrimSpace(raw)
	if source == "" {
		return constants.DefaultWaitlistSource
	}
	if utf8.RuneCountInString(source) > constants.MaxSourceLength {
		source = string([]rune(source)[:constants.MaxSourceLength])
	}
	return source
}
