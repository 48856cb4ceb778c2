package usecase

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xavierca1/leadflow/internal/entity"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	must(v.RegisterValidation("leademail", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	}))
	must(v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return entity.Stage(fl.Field().String()).Valid()
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// IsValidEmail accepts the empty string and anything shaped like
// local@domain.tld.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return true
	}
	return emailPattern.MatchString(email)
}

// ValidateLeadInput checks an already normalized input. When several fields
// are wrong the first of company, email, stage is reported. A blank stage is
// accepted; callers pick the default.
func ValidateLeadInput(input entity.LeadInput) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failed := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.Field()] = true
	}

	switch {
	case failed["Company"]:
		return ErrMissingCompany
	case failed["Email"]:
		return ErrInvalidEmail
	case failed["Stage"]:
		return ErrInvalidStage
	}
	return err
}

// ParseStage trims raw and checks it against the fixed stage set.
func ParseStage(raw string) (entity.Stage, error) {
	stage := entity.Stage(strings.TrimSpace(raw))
	if !stage.Valid() {
		return "", ErrInvalidStage
	}
	return stage, nil
}
