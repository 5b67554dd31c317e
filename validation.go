package accounts

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// RegistrationPayload is the input to Register
type RegistrationPayload struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Bio            string `json:"bio,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Validate applies the registration input rules. Password strength beyond the
// minimum length is the host application's concern.
func (r RegistrationPayload) Validate(minPasswordLength int) error {
	if minPasswordLength <= 0 {
		minPasswordLength = NewDefaultConfig().MinPasswordLength
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, 100)),
	)
}

// FormatValidationErrorToMap flattens ozzo field errors into a field -> message map
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
