package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"investledger/internal/models"
)

var (
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrMissingMethod        = errors.New("payment method is required")
	ErrMissingFullName      = errors.New("full name is required")
	ErrMissingWalletAddress = errors.New("wallet address is required")
	ErrUnknownCategory      = errors.New("payment category must be electronic or crypto")
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// PaymentValidator checks the payout details attached to a withdrawal.
type PaymentValidator struct {
	phone *regexp.Regexp
}

func NewPaymentValidator(phonePattern string) (*PaymentValidator, error) {
	phone, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	return &PaymentValidator{phone: phone}, nil
}

// Validate returns the first problem found. Phone numbers are compared
// with spaces and dashes stripped.
func (v *PaymentValidator) Validate(details models.PaymentDetails) error {
	if strings.TrimSpace(details.Method) == "" {
		return ErrMissingMethod
	}
	if strings.TrimSpace(details.FullName) == "" {
		return ErrMissingFullName
	}
	if err := ValidateEmail(strings.TrimSpace(details.Email)); err != nil {
		return err
	}
	switch details.Category {
	case models.PaymentElectronic:
		phone := strings.NewReplacer(" ", "", "-", "").Replace(details.Phone)
		if !v.phone.MatchString(phone) {
			return ErrInvalidPhone
		}
	case models.PaymentCrypto:
		if strings.TrimSpace(details.WalletAddress) == "" {
			return ErrMissingWalletAddress
		}
	default:
		return ErrUnknownCategory
	}
	return nil
}
