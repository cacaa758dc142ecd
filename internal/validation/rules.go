package validation

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Register installs the custom rules on v: "username" and "tag_list".
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && ValidateUsername(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("tag_list", func(fl validator.FieldLevel) bool {
		tags, ok := stringList(fl.Field())
		return ok && ValidateTags(tags) == nil
	})
}

// stringList accepts []string as well as the []any JSON decoding produces.
func stringList(v reflect.Value) ([]string, bool) {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i)
		if item.Kind() == reflect.Interface {
			item = item.Elem()
		}
		if item.Kind() != reflect.String {
			return nil, false
		}
		out = append(out, item.String())
	}
	return out, true
}
