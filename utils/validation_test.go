package utils

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Name     string  `json:"name" validate:"required,max=10"`
	Endpoint string  `json:"endpoint" validate:"omitempty,url"`
	Score    float64 `json:"score" validate:"gte=0,lte=2"`
	Kind     string  `json:"kind" validate:"omitempty,oneof=a b"`
	Secret   string  `json:"-" validate:"omitempty,min=3"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      testRequest
		wantFields []string
	}{
		{
			name:  "valid struct",
			input: testRequest{Name: "ok", Endpoint: "https://api.example.com", Score: 1},
		},
		{
			name:       "missing required field",
			input:      testRequest{},
			wantFields: []string{"name"},
		},
		{
			name:       "too long and bad url",
			input:      testRequest{Name: "much too long", Endpoint: "not a url"},
			wantFields: []string{"name", "endpoint"},
		},
		{
			name:       "range and oneof",
			input:      testRequest{Name: "ok", Score: 3, Kind: "c"},
			wantFields: []string{"score", "kind"},
		},
		{
			name:       "json dash falls back to field name",
			input:      testRequest{Name: "ok", Secret: "x"},
			wantFields: []string{"Secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			assert.Len(t, fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidationError_Details(t *testing.T) {
	err := ValidateStruct(&testRequest{})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "Validation failed", validationErr.Error())
	assert.Equal(t, "name is required", validationErr.Details()["name"])
}

func TestGetValidationFields_NotValidationError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()

	got, err := ParseUUID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("book", "bookKey"))
	assert.EqualError(t, ValidateRequired("   ", "bookKey"), "bookKey is required")
}
