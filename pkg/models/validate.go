package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// FieldError is a single failed constraint.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors is returned by Validate when one or more constraints fail.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// Validate checks val against its `validate` struct tags.
func Validate(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, FieldError{
			Field: verror.Field(),
			Err:   messageForTag(verror),
		})
	}
	return fields
}

func messageForTag(verror validator.FieldError) string {
	switch verror.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + verror.Param()
	case "oneof":
		return "must be one of " + verror.Param()
	default:
		return "failed " + verror.Tag() + " constraint"
	}
}

// Parse decodes one raw item into T and validates it. Validation applies only
// when T is a struct.
func Parse[T any](raw json.RawMessage) (T, error) {
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, fmt.Errorf("decode %T: %w", item, err)
	}

	if reflect.Indirect(reflect.ValueOf(&item)).Kind() == reflect.Struct {
		if err := Validate(&item); err != nil {
			return item, fmt.Errorf("invalid %T: %w", item, err)
		}
	}
	return item, nil
}
