package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	wrapped := fmt.Errorf("create ticket: %w", NewConflict("taken", map[string]any{"retryable": true}))
	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeConflict, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.Equal(t, true, de.Details["retryable"])

	de = ToDomainError(fiber.NewError(http.StatusForbidden, "superuser required"))
	assert.Equal(t, CodeForbidden, de.Code)
	assert.Equal(t, "superuser required", de.Message)

	de = ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, CodeNotFound, de.Code)

	boom := errors.New("disk on fire")
	de = ToDomainError(boom)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, boom)

	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewFieldError("name", "name is required"), CodeValidation, http.StatusBadRequest},
		{NewInvalidTransition("FINALIZED", "OPEN"), CodeInvalidTransition, http.StatusUnprocessableEntity},
		{NewNotFound("ticket", nil), CodeNotFound, http.StatusNotFound},
		{NewUnauthorized("no token"), CodeUnauthorized, http.StatusUnauthorized},
		{NewForbidden("superuser required"), CodeForbidden, http.StatusForbidden},
		{NewReferentialIntegrity("in use", nil), CodeReferentialIntegrity, http.StatusConflict},
	}
	for _, tc := range cases {
		de := ToDomainError(tc.err)
		assert.Equal(t, tc.code, de.Code, tc.err.Error())
		assert.Equal(t, tc.status, de.HTTPStatus, tc.err.Error())
		assert.True(t, IsCode(tc.err, tc.code))
	}

	fields := ToDomainError(NewFieldError("email", "taken")).Details["fields"]
	assert.Equal(t, map[string]string{"email": "taken"}, fields)
}
