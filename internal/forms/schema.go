// Package forms is the schema-driven form engine. A Schema declares per-field
// rules in validator tag syntax, a Controller runs one submission through
// validate, decode and submit.
package forms

import (
	"fmt"
	"sort"
	"strings"

	"softspot/internal/models"
	"softspot/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Kind is the type a draft value is coerced to before its rules run.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindStrings
)

// Field is one input of a form.
type Field struct {
	Name    string
	Label   string
	Kind    Kind
	Rules   string
	Message string
}

// Schema is an ordered list of fields.
type Schema struct {
	Name   string
	Fields []Field
}

// FieldErrors maps a field name to its message.
type FieldErrors map[string]string

// Keys returns the failing field names in order.
func (fe FieldErrors) Keys() []string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := validation.Register(v); err != nil {
		panic(fmt.Sprintf("register validation rules: %v", err))
	}
	return v
}

// Validate checks draft against every field and returns nil when all pass.
// Keys missing from draft are validated as the zero value of the field kind.
func (s Schema) Validate(draft map[string]any) FieldErrors {
	errs := FieldErrors{}
	for _, f := range s.Fields {
		value, err := f.coerce(draft[f.Name])
		if err != nil {
			errs[f.Name] = f.describe("type", "")
			continue
		}
		if f.Rules == "" {
			continue
		}
		if err := validate.Var(value, f.Rules); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok || len(verrs) == 0 {
				errs[f.Name] = f.describe("", "")
				continue
			}
			errs[f.Name] = f.describe(verrs[0].Tag(), verrs[0].Param())
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Check validates a typed input by encoding it to a draft first. The failure
// is a VALIDATION_ERROR AppError carrying the field messages.
func (s Schema) Check(input any) error {
	draft, err := Encode(input)
	if err != nil {
		return models.NewValidationError(err.Error())
	}
	if errs := s.Validate(draft); errs != nil {
		return models.NewFieldValidationError(errs)
	}
	return nil
}

// Decode copies draft into out, converting loosely typed values: "10" decodes
// into a float64 field and "true" into a bool. Struct fields are matched by
// their json tag.
func Decode(draft map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(draft)
}

// Encode flattens a typed input into a draft keyed by json tag.
func Encode(input any) (map[string]any, error) {
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(input); err != nil {
		return nil, err
	}
	return out, nil
}

func (f Field) coerce(raw any) (any, error) {
	switch f.Kind {
	case KindNumber:
		var n float64
		if raw == nil || raw == "" {
			return n, nil
		}
		err := mapstructure.WeakDecode(raw, &n)
		return n, err
	case KindBool:
		var b bool
		if raw == nil || raw == "" {
			return b, nil
		}
		err := mapstructure.WeakDecode(raw, &b)
		return b, err
	case KindStrings:
		list := []string{}
		if raw == nil {
			return list, nil
		}
		err := mapstructure.WeakDecode(raw, &list)
		return list, err
	default:
		var s string
		if raw == nil {
			return s, nil
		}
		err := mapstructure.WeakDecode(raw, &s)
		return strings.TrimSpace(s), err
	}
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return strings.ReplaceAll(f.Name, "_", " ")
}

func (f Field) describe(tag, param string) string {
	if f.Message != "" {
		return f.Message
	}
	label := f.label()
	text := f.Kind == KindString
	list := f.Kind == KindStrings

	switch tag {
	case "type":
		return fmt.Sprintf("%s has the wrong type", label)
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		switch {
		case text:
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		case list:
			return fmt.Sprintf("%s needs at least %s entries", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "max":
		switch {
		case text:
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		case list:
			return fmt.Sprintf("%s allows at most %s entries", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", label, param)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.Join(strings.Fields(param), ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", label)
	case "hexcolor":
		return fmt.Sprintf("%s must be a hex color like #ffaacc", label)
	case "username":
		return fmt.Sprintf("%s must be 3-24 lowercase letters, numbers, or underscores", label)
	case "tag_list":
		return fmt.Sprintf("%s must be up to %d short lowercase tags without repeats", label, validation.MaxTags)
	}
	return fmt.Sprintf("%s is invalid", label)
}
