package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/proctorhub/session-service/internal/models"
)

// Validator wraps the struct validator with the domain's custom rules
// registered once.
type Validator struct {
	structValidator *validator.Validate
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Report json tag names instead of Go field names in error messages.
	structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidators(structValidator)

	return &Validator{structValidator: structValidator}
}

// Validate validates struct tags and converts failures to the shared
// ValidationErrors type.
func (v *Validator) Validate(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if ve := ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("violation_type", func(fl validator.FieldLevel) bool {
		return models.ViolationType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("violation_severity", func(fl validator.FieldLevel) bool {
		return models.ViolationSeverity(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("violation_source", func(fl validator.FieldLevel) bool {
		return models.ViolationSource(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("session_status", func(fl validator.FieldLevel) bool {
		return models.SessionStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("participant_role", func(fl validator.FieldLevel) bool {
		return models.ParticipantRole(fl.Field().String()).Valid()
	})
}
