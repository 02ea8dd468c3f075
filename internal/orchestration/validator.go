package orchestration

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// requiredFields lists the keys every generated request must carry
var requiredFields = []string{"method", "url", "headers", "body"}

// SchemaValidator turns an untyped object into a RequestSpec
type SchemaValidator struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSchemaValidator creates a validator reporting field names by their JSON keys
func NewSchemaValidator(logger *zap.Logger) *SchemaValidator {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &SchemaValidator{
		validate: v,
		logger:   logger.With(zap.String("component", "validator")),
	}
}

// Validate checks obj against the RequestSpec shape. Missing, null or mistyped fields,
// unsupported methods and non-HTTP URLs fail with a SchemaViolationError.
func (sv *SchemaValidator) Validate(obj map[string]any) (*models.RequestSpec, error) {
	for _, field := range requiredFields {
		value, ok := obj[field]
		if !ok {
			return nil, sv.violation(&SchemaViolationError{Field: field, Reason: "field required"})
		}
		if value == nil {
			return nil, sv.violation(&SchemaViolationError{Field: field, Reason: "must not be null"})
		}
	}

	var spec models.RequestSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &spec,
		TagName:    "mapstructure",
		ErrorUnset: true,
		DecodeHook: rejectNumberAsString,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(obj); err != nil {
		return nil, sv.violation(&SchemaViolationError{Reason: decodeReason(err), Err: err})
	}

	spec.Method = strings.ToUpper(strings.TrimSpace(spec.Method))
	spec.URL = strings.TrimSpace(spec.URL)

	if err := sv.validate.Struct(&spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return nil, sv.violation(&SchemaViolationError{
				Field:  fe.Field(),
				Reason: fieldReason(fe),
				Err:    err,
			})
		}
		return nil, sv.violation(&SchemaViolationError{Reason: err.Error(), Err: err})
	}

	sv.logger.Debug("validated request",
		zap.String("method", spec.Method),
		zap.String("url", spec.URL),
		zap.Int("headers", len(spec.Headers)),
	)
	return &spec, nil
}

var numberType = reflect.TypeOf(json.Number(""))

// rejectNumberAsString stops a decoded JSON number from passing as a string field,
// since json.Number is itself a string kind
func rejectNumberAsString(from, to reflect.Type, data any) (any, error) {
	if from == numberType && to.Kind() == reflect.String {
		return nil, fmt.Errorf("expected type 'string', got number %v", data)
	}
	return data, nil
}

func (sv *SchemaValidator) violation(err *SchemaViolationError) error {
	sv.logger.Debug("validation error", zap.Error(err))
	return err
}

func decodeReason(err error) string {
	var msErr *mapstructure.Error
	if errors.As(err, &msErr) && len(msErr.Errors) > 0 {
		return strings.Join(msErr.Errors, "; ")
	}
	return err.Error()
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "oneof":
		return fmt.Sprintf("unsupported method %q", fe.Value())
	case "http_url":
		return fmt.Sprintf("not an absolute http(s) URL: %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
