package auth

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("invalid input")

var validate = validator.New()

// Credentials is the username/password pair of register and login.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=24,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func ValidateCredentials(c Credentials) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s fails %q", ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
