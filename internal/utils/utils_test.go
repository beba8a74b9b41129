package utils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/gamevault/internal/models"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidAmount, http.StatusBadRequest},
		{models.ErrUnauthorized, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("order o1: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("hold: %w", models.ErrInsufficientFunds), http.StatusConflict},
		{models.ErrAlreadyResolved, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{fmt.Errorf("dial tcp: refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorStatus(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, RespondError(c, fmt.Errorf("pq: password authentication failed")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCheckAmount(t *testing.T) {
	for _, s := range []string{"0", "-1", "0.0000000001", "1.123456789", "1e30"} {
		assert.ErrorIs(t, CheckAmount(decimal.RequireFromString(s)), models.ErrInvalidAmount, s)
	}
	for _, s := range []string{"1", "150.5", "0.01"} {
		assert.NoError(t, CheckAmount(decimal.RequireFromString(s)), s)
	}
}

func TestBindAndValidate(t *testing.T) {
	type req struct {
		Decision string `json:"decision" validate:"required,oneof=approve reject"`
	}
	e := echo.New()
	e.Validator = NewRequestValidator()

	bind := func(body string) error {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		var out req
		return BindAndValidate(e.NewContext(r, httptest.NewRecorder()), &out)
	}

	assert.NoError(t, bind(`{"decision":"approve"}`))
	assert.Error(t, bind(`{"decision":"maybe"}`))
	assert.EqualError(t, bind(`{"decision":`), "invalid request body")
}

func TestPageClamps(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=1000&offset=-3", nil), httptest.NewRecorder())
	limit, offset := Page(c)
	assert.Equal(t, 200, limit)
	assert.Equal(t, 0, offset)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	limit, _ = Page(c)
	assert.Equal(t, 50, limit)
}
