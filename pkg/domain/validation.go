package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, ok := parseClock(fl.Field().String())
		return ok
	})
	return v
}

// Validate checks the required fields of a patient.
func (p Patient) Validate() error { return validateEntity(EntityPatient, p) }

// Validate checks the patient reference and date/time formats.
func (a Appointment) Validate() error { return validateEntity(EntityAppointment, a) }

// Validate checks the patient reference and date format.
func (e Entry) Validate() error { return validateEntity(EntityEntry, e) }

// Validate checks the patient reference.
func (r RxMeta) Validate() error { return validateEntity(EntityRx, r) }

func validateEntity(entity EntityType, value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return ValidationError{Entity: entity, Field: fe.Field(), Reason: reason(fe)}
	}
	return ValidationError{Entity: entity, Field: "", Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must match " + fe.Param()
	case "clock":
		return "must be HH:MM"
	default:
		return "failed " + fe.Tag()
	}
}
