package jsonbind

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
	"github.com/fiam/jsonbind/pkg/jsonbind/format"
)

type account struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"gte=0,lte=150"`
}

func bindBody(t *testing.T, b *Binder, modelType reflect.Type, body string) (any, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return b.Bind(t.Context(), httptest.NewRecorder(), req, modelType)
}

func TestBinderValidates(t *testing.T) {
	t.Parallel()
	b := newBinder(defaultOptions())

	model, err := bindBody(t, b, reflect.TypeFor[account](), `{"email":"a@example.com","age":30}`)
	require.NoError(t, err)
	assert.Equal(t, &account{Email: "a@example.com", Age: 30}, model)

	_, err = bindBody(t, b, reflect.TypeFor[account](), `{"email":"nope"}`)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrorCodeValidation, apiErr.Code)

	// Blank bodies still bind, but an empty account is not valid.
	_, err = bindBody(t, b, reflect.TypeFor[account](), ``)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrorCodeValidation, apiErr.Code)
}

func TestBinderSkipsValidation(t *testing.T) {
	t.Parallel()
	o := defaultOptions()
	o.Validate = false
	b := newBinder(o)

	model, err := bindBody(t, b, reflect.TypeFor[account](), `{"email":"nope"}`)
	require.NoError(t, err)
	assert.Equal(t, &account{Email: "nope"}, model)

	// Non struct models are never validated.
	b = newBinder(defaultOptions())
	model, err = bindBody(t, b, reflect.TypeFor[[]account](), `[{"email":"nope"}]`)
	require.NoError(t, err)
	assert.Equal(t, &[]account{{Email: "nope"}}, model)
}

func TestBinderInvalidFormat(t *testing.T) {
	t.Parallel()
	b := newBinder(defaultOptions())
	_, err := bindBody(t, b, reflect.TypeFor[account](), `{"email":`)
	require.ErrorIs(t, err, format.ErrInvalidFormat)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrorCodeInvalidFormat, apiErr.Code)
}
