package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/errs"
)

type publishRequest struct {
	BookID  string `json:"bookId" validate:"required"`
	Publish *bool  `json:"publish" validate:"required"`
}

type bookForm struct {
	Title    string `form:"title" validate:"required,max=200"`
	PriceLKR int    `form:"price_lkr" validate:"gte=0"`
}

func TestValidatePasses(t *testing.T) {
	yes := true
	assert.NoError(t, New().Validate(publishRequest{BookID: "b-1", Publish: &yes}))
}

func TestValidateFalseIsPresent(t *testing.T) {
	no := false
	assert.NoError(t, New().Validate(publishRequest{BookID: "b-1", Publish: &no}))
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := New().Validate(publishRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "bookId is required; publish is required", e.Message)
	assert.Equal(t, map[string]string{"bookId": "is required", "publish": "is required"}, e.Details)
}

func TestValidateUsesFormTagsAndNumericBounds(t *testing.T) {
	err := New().Validate(bookForm{Title: "", PriceLKR: -1})
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	details := e.Details.(map[string]string)
	assert.Equal(t, "is required", details["title"])
	assert.Equal(t, "must be greater than or equal to 0", details["price_lkr"])
}
