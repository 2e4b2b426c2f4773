package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateSampleValue, Sample{})
	return v
}

// validateSampleValue checks the value against the type of data. Zero is a
// valid reading, so "required" on the field itself would be wrong.
func validateSampleValue(sl validator.StructLevel) {
	s, ok := sl.Current().Interface().(Sample)
	if !ok {
		return
	}

	switch {
	case s.Value == nil:
		sl.ReportError(s.Value, "value", "Value", "required", "")
	case s.TypeOfData == TypeWater:
		if _, ok := s.Value.(string); !ok {
			sl.ReportError(s.Value, "value", "Value", "string", s.TypeOfData)
		}
	case s.TypeOfData != "":
		if _, ok := MetricFor(s.TypeOfData); !ok {
			return
		}
		if _, ok := toFloat(s.Value); !ok {
			sl.ReportError(s.Value, "value", "Value", "number", s.TypeOfData)
		}
	}
}

// Validate checks s and normalizes its value: numbers become float64 and
// water readings are lower-cased. Returns a *ValidationError listing every
// violation.
func Validate(s *Sample) error {
	s.SmartPotSerial = strings.TrimSpace(s.SmartPotSerial)

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		violations := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			violations = append(violations, describe(fe))
		}
		return &ValidationError{Violations: violations}
	}

	if s.TypeOfData == TypeWater {
		s.Value = strings.ToLower(strings.TrimSpace(s.Value.(string))) //nolint:errcheck,forcetypeassert // checked by validateSampleValue
		return nil
	}
	v, _ := toFloat(s.Value)
	s.Value = v
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "string":
		return fmt.Sprintf("%s must be a string for %s", fe.Field(), fe.Param())
	case "number":
		return fmt.Sprintf("%s must be a number for %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// toFloat accepts the numeric forms a decoded value can take. NaN and
// infinities are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
