package httpapi

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})

	return validate
}

// validateStruct runs struct-tag validation and collapses the result into a
// single human-readable message, matching the shape ameboerr.BadInputError expects.
func validateStruct(s any) error {
	if err := validatorInstance().Struct(s); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		messages := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			messages = append(messages, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
		}

		return fmt.Errorf("%s", strings.Join(messages, "; "))
	}

	return nil
}
