package types

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator returns the shared validator with the domain rules registered.
// validator.Validate caches struct metadata and is safe for concurrent use.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("origin", func(fl validator.FieldLevel) bool {
			return Origin(fl.Field().String()).IsValid()
		})
	})
	return validate
}

// fieldErrorCodes maps a failing struct field to the error code reported for it.
var fieldErrorCodes = map[string]ErrorCode{
	"ID":          ErrCodeValidationNotificationID,
	"Recipient":   ErrCodeValidationRecipient,
	"ContentType": ErrCodeValidationMissingField,
	"Origin":      ErrCodeValidationOrigin,
	"Weight":      ErrCodeValidationWeight,
}

// Validate normalizes and checks a notification before intake. Recipient and
// ContentType are trimmed and Origin is canonicalized in place.
func (n *DataAvailableNotification) Validate() error {
	n.ContentType = strings.TrimSpace(n.ContentType)
	if n.Recipient != "" {
		recipient, err := NewMarketOperator(string(n.Recipient))
		if err != nil {
			return err
		}
		n.Recipient = recipient
	}
	if n.Origin != "" {
		if origin, err := ParseOrigin(string(n.Origin)); err == nil {
			n.Origin = origin
		}
	}

	err := structValidator().Struct(n)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewAppError(ErrCodeValidationPayload, "notification failed validation", err)
	}

	first := fieldErrs[0]
	code, ok := fieldErrorCodes[first.StructField()]
	if !ok {
		code = ErrCodeValidationPayload
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return NewAppErrorWithDetails(code, "notification failed validation: "+first.Field(), err, details)
}
