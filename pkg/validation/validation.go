// Package validation holds the input checks shared by every artifact
// builder: struct validation for config models and the security checks that
// reject path traversal and dangerous shell text before anything is rendered
// or written to disk.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// ErrValidation is the sentinel wrapped by every model validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrSecurityViolation is the sentinel wrapped by every security check failure.
	ErrSecurityViolation = errors.New("security violation")
)

const (
	// MaxNameLength bounds artifact names.
	MaxNameLength = 64
	// MaxDescriptionLength bounds artifact descriptions.
	MaxDescriptionLength = 1024
	// MaxBodyLength bounds rendered Markdown bodies.
	MaxBodyLength = 512 * 1024
)

var (
	nameRegex     = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	toolNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\(.*\))?$|^mcp__[A-Za-z0-9_-]+(__[A-Za-z0-9_-]+)?$`)
	versionRegex  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

var (
	v    *validator.Validate
	once sync.Once
)

// V returns the shared validator with the artifact-specific tags registered.
func V() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		for tag, fn := range map[string]validator.Func{
			"artifactname": artifactNameValidator,
			"commandname":  commandNameValidator,
			"toolname":     toolNameValidator,
			"safetext":     safeTextValidator,
			"version":      versionValidator,
		} {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
			}
		}
	})
	return v
}

// IsVersion reports whether s is a plain MAJOR.MINOR.PATCH version
func IsVersion(s string) bool {
	return versionRegex.MatchString(s)
}

func versionValidator(fl validator.FieldLevel) bool {
	return IsVersion(fl.Field().String())
}

func artifactNameValidator(fl validator.FieldLevel) bool {
	return ValidateName(fl.Field().String()) == nil
}

func commandNameValidator(fl validator.FieldLevel) bool {
	return ValidateCommandName(fl.Field().String()) == nil
}

func toolNameValidator(fl validator.FieldLevel) bool {
	return IsToolName(fl.Field().String())
}

func safeTextValidator(fl validator.FieldLevel) bool {
	return ValidateText(fl.FieldName(), fl.Field().String(), 0) == nil
}

// IsToolName reports whether s looks like a tool reference such as "Read",
// "Bash(git status:*)" or "mcp__github__create_issue".
func IsToolName(s string) bool {
	return toolNameRegex.MatchString(s)
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// Error collects field failures of one model. It unwraps to ErrValidation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *Error) Unwrap() error {
	return ErrValidation
}

// Struct validates s with V and converts validator errors into *Error.
func Struct(s any) error {
	err := V().Struct(s)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return errors.Wrap(ErrValidation, err.Error())
	}

	out := &Error{}
	for _, fe := range ves {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: describe(fe),
		})
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "artifactname":
		return "must be lowercase letters, digits and single hyphens (e.g. my-skill)"
	case "commandname":
		return "must be lowercase words joined by hyphens, optionally namespaced with ':' (e.g. git:commit)"
	case "toolname":
		return fmt.Sprintf("%q is not a valid tool name", fe.Value())
	case "safetext":
		return "contains control characters"
	case "version":
		return "must be MAJOR.MINOR.PATCH (e.g. 1.0.0)"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
