// Package validation registers the request rules on gin's validator engine
// and turns binding failures into field-level messages.
package validation

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
)

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// ContactSubjects are the subjects offered by the contact form.
var ContactSubjects = []string{"Site Vitrine", "Boutique E-commerce", "Logiciel Web", "Coaching Web", "Autre"}

var setupOnce sync.Once

// Setup registers the custom rules on gin's default validator. It is safe to
// call more than once.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			Register(v)
		}
	})
}

// Register adds the objectid, strongpassword, phone and contactsubject tags
// and reports fields by their JSON names.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = field.Tag.Get("form")
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return objectIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("contactsubject", func(fl validator.FieldLevel) bool {
		subject := fl.Field().String()
		for _, s := range ContactSubjects {
			if s == subject {
				return true
			}
		}
		return false
	})
}

// StrongPassword requires at least 8 characters with an upper case letter, a
// digit and a symbol.
func StrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var upper, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r < 'a' || r > 'z':
			special = true
		}
	}
	return upper && digit && special
}

// BindJSON decodes and validates the request body. Malformed JSON is a bad
// request; rule violations become a validation error listing every field.
func BindJSON(c *gin.Context, obj any) error {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperr.Validation("validation failed", Messages(verrs)...)
	}
	if errors.Is(err, io.EOF) {
		return apperr.BadRequest("request body is required")
	}
	return apperr.BadRequest("invalid request body")
}

// ParseID validates a path or body identifier.
func ParseID(raw, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("validation failed", field+" must be a valid id")
	}
	return id, nil
}

func Messages(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		out = append(out, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "objectid":
		return field + " must be a valid id"
	case "strongpassword":
		return field + " must be at least 8 characters and contain an upper case letter, a digit and a symbol"
	case "phone":
		return field + " must contain between 10 and 15 digits"
	case "contactsubject":
		return field + " must be one of: " + strings.Join(ContactSubjects, ", ")
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}
