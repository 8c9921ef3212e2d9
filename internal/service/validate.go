package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/model"
)

// newValidator reports fields by their JSON name, so messages read
// "email is required" and not "Email is required".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCreate checks the create payload and returns the first problem
// as a validation error. Fields are checked in declaration order.
func (s *UserService) validateCreate(req *model.CreateUserRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), fieldMessage(fe, fieldValue(req, fe.Field())))
}

// fieldValue returns the raw pointer behind a JSON field name, nil if absent.
func fieldValue(req *model.CreateUserRequest, field string) *string {
	switch field {
	case "first_name":
		return req.FirstName
	case "last_name":
		return req.LastName
	case "avatar":
		return req.Avatar
	case "email":
		return req.Email
	}
	return nil
}

// fieldMessage words a failure the way API clients of this service have
// always seen it. The decision looks at the value itself rather than the tag,
// because validator treats a pointer to "" as present.
func fieldMessage(fe validator.FieldError, value *string) string {
	switch {
	case value == nil:
		return fmt.Sprintf("%s is required", fe.Field())
	case *value == "":
		return fmt.Sprintf("%s is not allowed to be empty", fe.Field())
	case fe.Tag() == "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}
