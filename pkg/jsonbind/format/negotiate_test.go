package format

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
)

func TestSelectOutput(t *testing.T) {
	t.Parallel()
	jsonOut := &JSONOutput{}
	xmlOut := &XMLOutput{}
	formatters := []OutputFormatter{jsonOut, xmlOut}

	tests := []struct {
		accept string
		want   OutputFormatter
	}{
		{accept: "", want: jsonOut},
		{accept: "*/*", want: jsonOut},
		{accept: "application/xml", want: xmlOut},
		{accept: "text/xml; charset=utf-8", want: xmlOut},
		{accept: "application/json", want: jsonOut},
		{accept: "text/html, application/xml;q=0.9, */*;q=0.8", want: xmlOut},
		{accept: "application/json;q=0.5, application/xml", want: xmlOut},
		{accept: "application/xml;q=0, application/json", want: jsonOut},
		{accept: "image/png", want: jsonOut},
		{accept: "garbage;;;", want: jsonOut},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			t.Parallel()
			assert.Same(t, tt.want, SelectOutput(formatters, tt.accept))
		})
	}
}

func TestSelectInput(t *testing.T) {
	t.Parallel()
	form := &Form{}
	jsonIn := NewJSON()
	modelType := reflect.TypeFor[order]()

	formReq := httptest.NewRequest(http.MethodPost, "/", nil)
	formReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	f, err := SelectInput([]InputFormatter{form, jsonIn}, &InputContext{ModelType: modelType, Request: formReq})
	require.NoError(t, err)
	assert.Same(t, form, f)

	// JSON accepts any request, including ones with no content type.
	plainReq := httptest.NewRequest(http.MethodPost, "/", nil)
	f, err = SelectInput([]InputFormatter{form, jsonIn}, &InputContext{ModelType: modelType, Request: plainReq})
	require.NoError(t, err)
	assert.Same(t, jsonIn, f)

	_, err = SelectInput([]InputFormatter{form}, &InputContext{ModelType: modelType, Request: plainReq})
	require.ErrorIs(t, err, ErrNoInputFormatter)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrorCodeUnsupportedMediaType, apiErr.Code)
}
