package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs schema validation on a decoded request body and returns
// a human-readable message for the first failing field, or "" when the
// payload is well formed. Every endpoint runs this before business logic.
func ValidateStruct(s interface{}) string {
	err := validate.Struct(s)
	if err == nil {
		return ""
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		f := verrs[0]
		if f.Param() != "" {
			return fmt.Sprintf("field '%s' failed validation rule '%s=%s'", f.Field(), f.Tag(), f.Param())
		}
		return fmt.Sprintf("field '%s' failed validation rule '%s'", f.Field(), f.Tag())
	}
	return err.Error()
}
