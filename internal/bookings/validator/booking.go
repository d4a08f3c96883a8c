package validator

import (
	"errors"
	"fmt"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("slot_date", validateSlotDate); err != nil {
		log.Fatal("Failed to register 'slot_date' validator",
			"error", err,
		)
	}
	if err := v.RegisterValidation("slot_time", validateSlotTime); err != nil {
		log.Fatal("Failed to register 'slot_time' validator",
			"error", err,
		)
	}
	v.RegisterStructValidation(validateHolder, model.Booking{})

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateSlotDate(fl validator.FieldLevel) bool {
	return slot.ValidDate(fl.Field().String())
}

func validateSlotTime(fl validator.FieldLevel) bool {
	return slot.ValidTime(fl.Field().String())
}

// validateHolder requires a contact for individual bookings and the host
// and capacity for classes.
func validateHolder(sl validator.StructLevel) {
	b := sl.Current().Interface().(model.Booking)

	if !b.IsClass {
		if b.Name == "" {
			sl.ReportError(b.Name, "Name", "name", "required", "")
		}
		if b.Email == "" {
			sl.ReportError(b.Email, "Email", "email", "required", "")
		}
		return
	}

	if b.ClassName == "" {
		sl.ReportError(b.ClassName, "ClassName", "class_name", "required", "")
	}
	if b.HostName == "" {
		sl.ReportError(b.HostName, "HostName", "host_name", "required", "")
	}
	if b.HostEmail == "" {
		sl.ReportError(b.HostEmail, "HostEmail", "host_email", "required", "")
	}
	if b.MaxParticipants <= 0 {
		sl.ReportError(b.MaxParticipants, "MaxParticipants", "max_participants", "required", "")
	}
	if b.MaxParticipants > 0 && b.ParticipantCount > b.MaxParticipants {
		sl.ReportError(b.ParticipantCount, "ParticipantCount", "participant_count", "lte_max", "")
	}
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) ValidateUpdate(update *model.BookingUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if update.Status != "" && update.Edits() {
		return ValidationErrors{
			ValidationError{
				Field:   "Status",
				Message: "a cancellation cannot be combined with other changes",
			},
		}
	}

	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "e164":
			message = fmt.Sprintf("%s must be in E.164 format (e.g., +16502530000)", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "slot_date":
			message = fmt.Sprintf("%s must be a calendar date in YYYY-MM-DD format", err.Field())
		case "slot_time":
			message = fmt.Sprintf("%s must be a whole hour in HH:00 format", err.Field())
		case "lte_max":
			message = fmt.Sprintf("%s cannot exceed max_participants", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
