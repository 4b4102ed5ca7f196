package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
)

const (
	emptyJSON           = "{}"
	jsonContentType     = "application/json"
	jsonMediaTypeSuffix = "+json"
)

// ErrInvalidFormat is wrapped by every error returned when a JSON body
// can't be decoded into the requested model.
var ErrInvalidFormat = errors.New("invalid JSON format")

type decodeFunc func(ctx context.Context, data []byte) (any, error)

// decoder is the decode entry point specialized for a single model type.
type decoder struct {
	modelType reflect.Type
	decode    decodeFunc
}

func reflectDecoder(modelType reflect.Type) *decoder {
	return &decoder{
		modelType: modelType,
		decode: func(ctx context.Context, data []byte) (any, error) {
			out := reflect.New(modelType)
			if err := json.UnmarshalContext(ctx, data, out.Interface()); err != nil {
				return nil, err
			}
			return out.Interface(), nil
		},
	}
}

func typedDecoder[T any]() *decoder {
	return &decoder{
		modelType: reflect.TypeFor[T](),
		decode: func(ctx context.Context, data []byte) (any, error) {
			var out T
			if err := json.UnmarshalContext(ctx, data, &out); err != nil {
				return nil, err
			}
			return &out, nil
		},
	}
}

// JSON reads request bodies of any content type as JSON. It accepts every
// request, so it should be the last input formatter in a chain.
//
// The zero value is ready to use. A JSON must not be copied after first use.
type JSON struct {
	// reflect.Type -> *decoder, only ever grows
	decoders sync.Map
}

func NewJSON() *JSON {
	return &JSON{}
}

// RegisterJSONModel installs a decoder for T built without reflection.
// It's a no-op if f already has a decoder for T.
func RegisterJSONModel[T any](f *JSON) {
	dec := typedDecoder[T]()
	f.decoders.LoadOrStore(dec.modelType, dec)
}

func (f *JSON) decoderFor(modelType reflect.Type) *decoder {
	if dec, ok := f.decoders.Load(modelType); ok {
		return dec.(*decoder)
	}
	// Concurrent misses may build more than one decoder for the same type,
	// they're interchangeable and only the first one is kept.
	dec, _ := f.decoders.LoadOrStore(modelType, reflectDecoder(modelType))
	return dec.(*decoder)
}

func (f *JSON) CanRead(ic *InputContext) bool {
	return true
}

func (f *JSON) Read(ic *InputContext) (InputResult, error) {
	if ic.ModelType == nil {
		return InputResult{}, errNoModelType
	}
	dec := f.decoderFor(ic.ModelType)

	data, err := io.ReadAll(ic.Body())
	if err != nil {
		return InputResult{}, fmt.Errorf("reading request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte(emptyJSON)
	}

	ctx := ic.Context()
	model, err := dec.decode(ctx, data)
	if err != nil {
		return InputResult{}, api.ErrWithCode(api.ErrorCodeInvalidFormat, fmt.Errorf("%w: %w", ErrInvalidFormat, err))
	}
	api.Logger(ctx).Debug("decoded JSON body",
		slog.String("model", dec.modelType.String()), slog.Int("size", len(data)))
	return InputResult{Model: model}, nil
}

// JSONOutput writes responses as JSON.
type JSONOutput struct{}

func (f *JSONOutput) CanWrite(mediaType string) bool {
	return mediaType == jsonContentType || mediaType == "application/*" || strings.HasSuffix(mediaType, jsonMediaTypeSuffix)
}

func (f *JSONOutput) ContentType() string {
	return jsonContentType
}

func (f *JSONOutput) Write(ctx context.Context, w http.ResponseWriter, status int, v any) error {
	data, err := json.MarshalContext(ctx, v)
	if err != nil {
		return fmt.Errorf("serializing JSON: %w", err)
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing response to client: %w", err)
	}
	return nil
}
