package shipping

import (
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
)

// ErrInvalidAddress indicates a malformed shipping address. Recoverable: the
// caller surfaces a notice and totalization continues with the prior
// shipping state.
var ErrInvalidAddress = errors.New("shipping: invalid address")

// Address is the destination used when quoting shipping rates.
type Address struct {
	ReceiverName string `json:"receiverName" validate:"required"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	Province     string `json:"province,omitempty"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required,min=3,max=10"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAddress checks the address payload, wrapping field errors in
// ErrInvalidAddress.
func ValidateAddress(addr Address) error {
	if err := validate.Struct(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}
