package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"foundry/shared/models"

	"github.com/go-playground/validator/v10"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Имена полей в ошибках берем из json-тегов, чтобы они совпадали с API.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	return v
}

// IsSlug проверяет идентификатор контента: строчные буквы, цифры и дефисы.
func IsSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// Struct валидирует структуру и возвращает *models.ValidationError со списком
// всех нарушенных полей.
func Struct(entity string, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s: %w", entity, err)
	}
	out := &models.ValidationError{Entity: entity}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, models.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// Decode перекладывает произвольное значение (обычно map из JSON) в структуру
// dest и валидирует ее. Ошибки несовпадения типов тоже возвращаются как
// ValidationError.
func Decode(entity string, value interface{}, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &models.ValidationError{Entity: entity, Fields: []models.FieldError{{Field: "", Message: "value is not serializable"}}}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &models.ValidationError{Entity: entity, Fields: []models.FieldError{{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeErr.Type.String(), typeErr.Value),
			}}}
		}
		return &models.ValidationError{Entity: entity, Fields: []models.FieldError{{Field: "", Message: "expected an object"}}}
	}
	return Struct(entity, dest)
}

// fieldPath убирает имя корневого типа из namespace ("Platform.links[x]" -> "links[x]").
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "slug":
		return "use lowercase letters, numbers, and hyphens only"
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}
