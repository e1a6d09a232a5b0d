package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/erp/connector/internal/domain/integration"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("instant", func(fl validator.FieldLevel) bool {
		_, ok := integration.ParseInstant(fl.Field().String())
		return ok
	})
	v.RegisterStructValidation(validateDateRangeOrder, integration.ModifiedDateRange{})
	return v
}

func validateDateRangeOrder(sl validator.StructLevel) {
	r := sl.Current().Interface().(integration.ModifiedDateRange)
	start, okStart := integration.ParseInstant(r.StartDateGMT)
	end, okEnd := integration.ParseInstant(r.EndDateGMT)
	if okStart && okEnd && end.Before(start) {
		sl.ReportError(r.EndDateGMT, "endDateGMT", "EndDateGMT", "after_start", "")
	}
}

// Decode converts a structurally valid argument into its typed form.
func Decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Struct runs the typed checks declared in validate tags on s, naming fields
// below root. It is meant to run only after the structural rules passed.
func Struct(root string, s any) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{fmt.Sprintf("The %s object is invalid (%v).", root, err)}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("The %s value is invalid (%s).", fieldPath(root, fe), describe(fe)))
	}
	return messages
}

// fieldPath replaces the top-level struct name with root.
func fieldPath(root string, fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return root + ns[i:]
	}
	return root
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "a value is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "instant":
		return "must be an RFC 3339 timestamp"
	case "after_start":
		return "must not be before startDateGMT"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}
