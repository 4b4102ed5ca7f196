// Package format defines the input and output formatters used to bind
// request bodies to models and to serve responses.
package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
)

var (
	// ErrNoInputFormatter is returned when no registered formatter accepts a request.
	ErrNoInputFormatter = errors.New("no input formatter can read the request")

	errNoModelType = errors.New("no model type")
)

// InputContext carries what an InputFormatter needs to bind a request body.
type InputContext struct {
	// ModelType is the type the body is bound to. Formatters return a
	// pointer to a new value of this type.
	ModelType reflect.Type
	Request   *http.Request
}

// Context returns the request context.
func (ic *InputContext) Context() context.Context {
	if ic.Request == nil {
		return context.Background()
	}
	return ic.Request.Context()
}

// Body returns the request body, never nil.
func (ic *InputContext) Body() io.Reader {
	if ic.Request == nil || ic.Request.Body == nil {
		return http.NoBody
	}
	return ic.Request.Body
}

// MediaType returns the media type of the request Content-Type header,
// or an empty string if it's missing or malformed.
func (ic *InputContext) MediaType() string {
	if ic.Request == nil {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ic.Request.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

type InputResult struct {
	Model any
}

type InputFormatter interface {
	CanRead(ic *InputContext) bool
	Read(ic *InputContext) (InputResult, error)
}

type OutputFormatter interface {
	CanWrite(mediaType string) bool
	ContentType() string
	Write(ctx context.Context, w http.ResponseWriter, status int, v any) error
}

// SelectInput returns the first formatter that can read the request.
func SelectInput(formatters []InputFormatter, ic *InputContext) (InputFormatter, error) {
	for _, f := range formatters {
		if f.CanRead(ic) {
			return f, nil
		}
	}
	err := fmt.Errorf("%w with content type %q", ErrNoInputFormatter, ic.MediaType())
	return nil, api.ErrWithCode(api.ErrorCodeUnsupportedMediaType, err)
}
