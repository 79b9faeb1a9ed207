package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCPF(t *testing.T) {
	assert.Equal(t, "65253579001", NormalizeCPF("652.535.790-01"))
	assert.Equal(t, "95374011030", NormalizeCPF(" 953 740 110 30 "))
	assert.Equal(t, "", NormalizeCPF(""))
}

func TestIsValidCPF(t *testing.T) {
	valid := []string{"65253579001", "92010472071", "95374011030", "274.427.600-66", "529.982.247-25"}
	for _, cpf := range valid {
		assert.True(t, IsValidCPF(cpf), cpf)
	}

	invalid := []string{"", "00000000000", "11111111111", "12345678900", "6525357900", "652535790011"}
	for _, cpf := range invalid {
		assert.False(t, IsValidCPF(cpf), cpf)
	}
}

func TestValidatorCPFTag(t *testing.T) {
	type payload struct {
		CPF string `validate:"required,cpf"`
	}
	var v *validator.Validate
	require.NotPanics(t, func() { v = New() })

	require.NoError(t, v.Struct(payload{CPF: "65253579001"}))
	require.Error(t, v.Struct(payload{CPF: "00000000000"}))
}
