package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	configureValidator(v)
	return v
}

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

// Return on 'TagName' json tag instead of struct name
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}
