package tracker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// enum is implemented by every closed enum in models.
type enum interface {
	Valid() bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		e, ok := fl.Field().Interface().(enum)
		return ok && e.Valid()
	})
	return v
}

// check evaluates the struct's validate tags and reports every failing field.
func check(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Internal(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldName(fe), Message: describe(fe)})
	}
	return InvalidFields(fields)
}

// fieldName strips the struct name so nested paths read like JSON.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "uuid", "len=0|uuid":
		return "must be a valid UUID"
	case "email":
		return "must be a valid email address"
	case "datetime", "len=0|datetime=2006-01-02":
		return "must be a date in YYYY-MM-DD format"
	case "enum":
		return fmt.Sprintf("unknown value %v", fe.Value())
	}
	return "is invalid"
}

// checkDateOrder appends an error when end precedes start. Both are YYYY-MM-DD,
// so lexical order is date order.
func checkDateOrder(start, end *string) []FieldError {
	if start == nil || end == nil || *start == "" || *end == "" {
		return nil
	}
	if *end < *start {
		return []FieldError{{Field: "end_date", Message: "must not be before start_date"}}
	}
	return nil
}

// merge folds extra field errors into err, which must be nil or from check.
func merge(err error, extra []FieldError) error {
	if len(extra) == 0 {
		return err
	}
	var e *Error
	if err == nil {
		return InvalidFields(extra)
	}
	if errors.As(err, &e) && e.Kind == KindValidation {
		e.Fields = append(e.Fields, extra...)
		return e
	}
	return err
}
