// Package validation holds request validation rules shared by handlers and
// services.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const cpfLength = 11

// NormalizeCPF strips every non-digit character, so "652.535.790-01" becomes
// "65253579001".
func NormalizeCPF(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidCPF checks length, rejects repeated-digit sequences and verifies both
// check digits. Formatting characters are ignored.
func IsValidCPF(raw string) bool {
	cpf := NormalizeCPF(raw)
	if len(cpf) != cpfLength {
		return false
	}
	if strings.Count(cpf, cpf[:1]) == cpfLength {
		return false
	}
	first := checkDigit(cpf[:9])
	second := checkDigit(cpf[:9] + string(first))
	return cpf[9] == first && cpf[10] == second
}

func checkDigit(digits string) byte {
	factor := len(digits) + 1
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (factor - i)
	}
	check := (sum * 10) % 11
	if check == 10 {
		check = 0
	}
	return byte('0' + check)
}

// New returns a validator with the custom "cpf" tag registered.
func New() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return IsValidCPF(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}
