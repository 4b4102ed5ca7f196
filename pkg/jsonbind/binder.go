package jsonbind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
	"github.com/fiam/jsonbind/pkg/jsonbind/format"
)

// Binder binds request bodies to models using the first input formatter
// that accepts the request, then optionally validates the result.
type Binder struct {
	formatters   []format.InputFormatter
	maxBodyBytes int64
	validate     *validator.Validate
}

func newBinder(o options) *Binder {
	b := &Binder{
		formatters:   o.InputFormatters,
		maxBodyBytes: o.MaxBodyBytes,
	}
	if o.Validate {
		b.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return b
}

// Bind reads r into a new value of modelType and returns a pointer to it.
func (b *Binder) Bind(ctx context.Context, w http.ResponseWriter, r *http.Request, modelType reflect.Type) (any, error) {
	if b.maxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, b.maxBodyBytes)
	}
	ic := &format.InputContext{ModelType: modelType, Request: r.WithContext(ctx)}
	f, err := format.SelectInput(b.formatters, ic)
	if err != nil {
		return nil, err
	}
	api.Logger(ctx).Debug("binding request body",
		slog.String("formatter", fmt.Sprintf("%T", f)), slog.String("model", modelType.String()))
	result, err := f.Read(ic)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, api.ErrWithCode(api.ErrorCodeRequestEntityTooLarge, err)
		}
		return nil, fmt.Errorf("binding %s: %w", modelType, err)
	}
	if err := b.validateModel(result.Model); err != nil {
		return nil, api.ErrWithCode(api.ErrorCodeValidation, err)
	}
	return result.Model, nil
}

func (b *Binder) validateModel(model any) error {
	if b.validate == nil {
		return nil
	}
	rv := reflect.ValueOf(model)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := b.validate.Struct(rv.Interface()); err != nil {
		return fmt.Errorf("validating request: %w", err)
	}
	return nil
}
