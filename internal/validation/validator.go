// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// loginPattern matches an intra login before normalization. Surrounding
// whitespace is tolerated because logins are trimmed afterwards.
var loginPattern = regexp.MustCompile(`^\s*[A-Za-z0-9][A-Za-z0-9_-]{0,31}\s*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule. Field is the JSON name of the field, with
// an index for slice elements ("logins[2]").
type FieldError struct {
	Field   string
	Tag     string
	Value   any
	Message string
}

// Errors lists the failed rules of one request body.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// APIError mirrors models.APIError without importing models.
type APIError struct {
	Code    string
	Message string
	Details map[string]any
}

// ToAPIError builds the VALIDATION_ERROR body. A single failure is reported
// flat; several are listed under Details["fields"].
func (e Errors) ToAPIError() *APIError {
	apiErr := &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	switch len(e) {
	case 0:
	case 1:
		apiErr.Message = e[0].Message
		apiErr.Details = map[string]any{"field": e[0].Field, "tag": e[0].Tag, "value": e[0].Value}
	default:
		fields := make([]map[string]any, len(e))
		msgs := make([]string, len(e))
		for i, fe := range e {
			fields[i] = map[string]any{"field": fe.Field, "tag": fe.Tag, "message": fe.Message}
			msgs[i] = fe.Field + ": " + fe.Message
		}
		apiErr.Message = strings.Join(msgs, "; ")
		apiErr.Details = map[string]any{"fields": fields}
	}
	return apiErr
}

// GetValidator returns the shared validator with the intralogin tag
// registered and JSON field names in errors.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		if err := validate.RegisterValidation("intralogin", func(fl validator.FieldLevel) bool {
			return IsIntraLogin(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register intralogin validator: %v", err))
		}
	})
	return validate
}

// IsIntraLogin reports whether s looks like an intra login.
func IsIntraLogin(s string) bool {
	return loginPattern.MatchString(s)
}

// ValidateStruct checks s against its validate tags. It returns nil when s
// is valid.
func ValidateStruct(s any) Errors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{{Field: "unknown", Tag: "unknown", Message: err.Error()}}
	}

	out := make(Errors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Value: fe.Value(), Message: message(fe)}
	}
	return out
}

func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	// min and max read as lengths for strings and slices.
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice:
		unit = " items"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "intralogin":
		return field + " must be an intra login"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min":
		if unit == " items" {
			return fmt.Sprintf("%s must contain at least %s items", field, param)
		}
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		if unit == " items" {
			return fmt.Sprintf("%s must contain at most %s items", field, param)
		}
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
