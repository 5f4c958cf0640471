// Package validation turns gin binding errors into per-field messages keyed
// by JSON field name, the shape the backend uses for its own errors.
package validation

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// NonField is the key for messages that belong to no single field.
const NonField = "non_field_errors"

var setupOnce sync.Once

// Setup makes the gin validator report JSON field names. It is safe to call
// more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = f.Name
			}
			return name
		})
	})
}

type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e Errors) Empty() bool { return len(e) == 0 }

// FromBinding converts the error returned by ShouldBindJSON.
func FromBinding(err error) Errors {
	out := Errors{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out.Add(fe.Field(), message(fe))
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		out.Add(typeErr.Field, "Incorrect type.")
		return out
	}
	out.Add(NonField, "Invalid data. Expected a JSON object.")
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "min":
		return "Ensure this field has at least " + fe.Param() + " characters."
	case "eqfield":
		return "Must match " + strings.ToLower(fe.Param()) + "."
	}
	return "Invalid value."
}
