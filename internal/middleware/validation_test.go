package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAddress struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	State    string `json:"state" validate:"required,len=2"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=99"`
}

func decodeTestAddress(t *testing.T, body map[string]interface{}) (testAddress, error) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/checkout", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	var out testAddress
	err = DecodeAndValidate(req, &out)
	return out, err
}

// Feature: storefront, Property 21: Required fields are enforced
func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(withName, withEmail, withState bool) bool {
			body := map[string]interface{}{"quantity": 1}
			if withName {
				body["name"] = "Ada Lovelace"
			}
			if withEmail {
				body["email"] = "ada@example.com"
			}
			if withState {
				body["state"] = "NY"
			}

			_, err := decodeTestAddress(t, body)
			if withName && withEmail && withState {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_QuantityRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantity outside 0..99 is rejected", prop.ForAll(
		func(quantity int) bool {
			_, err := decodeTestAddress(t, map[string]interface{}{
				"name":     "Ada Lovelace",
				"email":    "ada@example.com",
				"state":    "NY",
				"quantity": quantity,
			})
			if quantity >= 0 && quantity <= 99 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-50, 150),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrors(t *testing.T) {
	_, err := decodeTestAddress(t, map[string]interface{}{
		"name":  "Ada Lovelace",
		"email": "not-an-email",
		"state": "NEW",
	})
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	require.Len(t, formatted, 2)

	byField := map[string]string{}
	for _, ve := range formatted {
		byField[ve.Field] = ve.Message
	}
	assert.Equal(t, "Invalid email format", byField["Email"])
	assert.Equal(t, "Value must be exactly 2 characters", byField["State"])
}

func TestFormatValidationErrors_IgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, FormatValidationErrors(errors.New("unexpected EOF")))
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/checkout", bytes.NewBufferString("{not json"))

	var out testAddress
	err := DecodeAndValidate(req, &out)
	require.Error(t, err)
	assert.Nil(t, FormatValidationErrors(err))
}
