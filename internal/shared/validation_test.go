package shared

import (
	"errors"
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type signup struct {
	FullName string   `form:"full_name" validate:"required,max=5"`
	Email    string   `form:"email" validate:"required,email"`
	Tags     []string `form:"tags" validate:"required,min=2"`
}

func TestValidateStructUsesFormNames(t *testing.T) {
	verr := ValidateStruct(NewValidator(), signup{FullName: "Ada Lovelace", Email: "nope", Tags: []string{"a"}})
	if assert.NotNil(t, verr) {
		assert.Equal(t, "The full name field must not be greater than 5 characters.", verr.Fields["full_name"])
		assert.Equal(t, "The email field must be a valid email address.", verr.Fields["email"])
		assert.Equal(t, "The tags field must have at least 2 items.", verr.Fields["tags"])
	}
	assert.Nil(t, ValidateStruct(NewValidator(), signup{FullName: "Ada", Email: "ada@example.com", Tags: []string{"a", "b"}}))
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	verr := NewValidationError("title", "The title field is required.")
	verr.Add("title", "ignored")

	assert.True(t, errors.Is(verr, ErrValidation))
	assert.Equal(t, "validation failed: title: The title field is required.", verr.Error())
	assert.Equal(t, map[string]string{"title": "The title field is required."}, FieldErrors(verr))
	assert.Nil(t, FieldErrors(ErrNotFound))
}

func TestPagination(t *testing.T) {
	page := PageFromQuery(url.Values{"page": {"3"}}, 10)
	assert.Equal(t, uint64(20), page.Offset())
	assert.Equal(t, uint64(10), page.Limit())

	p := NewPagination(page, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())

	first := PageFromQuery(url.Values{"page": {"junk"}}, 0)
	assert.Equal(t, Page{Number: 1, PerPage: DefaultPerPage}, first)
	assert.Zero(t, first.Offset())
}

func TestPageOffsetCapsHugePageNumbers(t *testing.T) {
	page := PageFromQuery(url.Values{"page": {"9223372036854775807"}}, 10)
	assert.Equal(t, uint64(math.MaxInt64), page.Offset())

	page = NewPage(math.MaxInt64/10+1, 10)
	assert.Equal(t, uint64(math.MaxInt64/10*10), page.Offset())
}
