package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskString_Production(t *testing.T) {
	orig := IsProduction
	IsProduction = true
	t.Cleanup(func() { IsProduction = orig })

	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			"email",
			"login failed for alice@example.com",
			"login failed for ***@***",
		},
		{
			"iban",
			"transfer to FR7630006000011234567890189",
			"transfer to [IBAN]",
		},
		{
			"card number",
			"card 4242 4242 4242 4242 declined",
			"card ****-****-****-**** declined",
		},
		{
			"amount with currency",
			"payment of 1249.99 EUR received",
			"payment of [AMOUNT] received",
		},
		{
			"plain text untouched",
			"sync completed for tenant t1",
			"sync completed for tenant t1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, MaskString(tt.in))
		})
	}
}

func TestMaskString_Development(t *testing.T) {
	orig := IsProduction
	IsProduction = false
	t.Cleanup(func() { IsProduction = orig })

	in := "login failed for alice@example.com, card 4242 4242 4242 4242"
	assert.Equal(t, in, MaskString(in), "masking only applies in production")
}
