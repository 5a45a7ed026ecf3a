package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("service_type", func(fl validator.FieldLevel) bool {
		return models.ServiceType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		return models.IsValidDate(fl.Field().String())
	})
	_ = v.RegisterValidation("slot_time", func(fl validator.FieldLevel) bool {
		return models.IsValidSlot(fl.Field().String())
	})
	_ = v.RegisterValidation("booking_status", func(fl validator.FieldLevel) bool {
		return models.BookingStatus(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks struct tags and reports failures as domain.ValidationErrors
// keyed by JSON field name.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := domain.ValidationErrors{}
	for _, fe := range fieldErrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "service_type":
		names := make([]string, 0)
		for _, s := range models.ServiceTypes() {
			names = append(names, string(s))
		}
		return "must be one of: " + strings.Join(names, ", ")
	case "calendar_date":
		return "must be a date in YYYY-MM-DD format"
	case "slot_time":
		return "must be a 30-minute slot in HH:MM format"
	case "booking_status":
		return "unknown booking status"
	}
	return "is invalid"
}
