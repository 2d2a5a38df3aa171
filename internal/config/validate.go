package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"devscript.dev/devscript/internal/apperr"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors is returned when a configuration fails validation.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate

	modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)
	shellMetaPattern = regexp.MustCompile("[;&|$`<>]")
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("model_name", validateModelName)
		validate.RegisterValidation("no_shell_metachar", validateNoShellMetachar)
	})
	return validate
}

// ValidateConfig checks direct-variant credentials.
func ValidateConfig(cfg *Config) error {
	return wrapMissing(validateStruct(cfg, nil))
}

// ValidateClientConfig checks client-variant credentials.
func ValidateClientConfig(cfg *ClientConfig) error {
	return wrapMissing(validateStruct(cfg, nil))
}

// ValidateModel checks a model name on its own, for setup flows that change
// only the model.
func ValidateModel(model string) error {
	if err := getValidator().Var(model, "required,model_name"); err != nil {
		return ValidationErrors{{Field: "model", Rule: "model_name", Message: fmt.Sprintf("%q is not a valid model name", model)}}
	}
	return nil
}

// ValidateSettings checks tool settings.
func ValidateSettings(cfg *Settings) error {
	var extra ValidationErrors
	if cfg.Execution.Timeout <= 0 {
		extra = append(extra, ValidationError{
			Field:   "execution.timeout",
			Rule:    "positive",
			Message: "execution.timeout must be positive",
		})
	}
	if cfg.API.RequestTimeout <= 0 {
		extra = append(extra, ValidationError{
			Field:   "api.request_timeout",
			Rule:    "positive",
			Message: "api.request_timeout must be positive",
		})
	}
	return validateStruct(cfg, extra)
}

func validateStruct(s interface{}, errs ValidationErrors) error {
	if err := getValidator().Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				errs = append(errs, ValidationError{
					Field:   e.Namespace(),
					Rule:    e.Tag(),
					Message: formatValidationError(e),
				})
			}
		} else {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// wrapMissing classifies a missing credential as ConfigMissing.
func wrapMissing(err error) error {
	errs, ok := err.(ValidationErrors)
	if !ok {
		return err
	}
	for _, e := range errs {
		if e.Rule == "required" {
			return apperr.Wrap(apperr.KindConfigMissing, "config", errs)
		}
	}
	return errs
}

func validateModelName(fl validator.FieldLevel) bool {
	return modelNamePattern.MatchString(fl.Field().String())
}

func validateNoShellMetachar(fl validator.FieldLevel) bool {
	return !shellMetaPattern.MatchString(fl.Field().String())
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", e.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", e.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "model_name":
		return fmt.Sprintf("%s is not a valid model name", e.Field())
	case "no_shell_metachar":
		return fmt.Sprintf("%s contains shell metacharacters", e.Field())
	default:
		return fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag())
	}
}
