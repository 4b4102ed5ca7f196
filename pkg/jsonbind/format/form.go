package format

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
)

const (
	formMediaType = "application/x-www-form-urlencoded"
	formTag       = "form"
)

var (
	errZeroIndex   = fmt.Errorf("index <= 0 not allowed")
	errNoSuchField = fmt.Errorf("no such field")
)

// Form reads url-encoded form bodies. Keys are dotted paths matched
// against `form` struct tags, with 1-based indices for slices
// (e.g. "items.2.name" or "items.member.2.name").
type Form struct{}

func (f *Form) CanRead(ic *InputContext) bool {
	return ic.MediaType() == formMediaType
}

func (f *Form) Read(ic *InputContext) (InputResult, error) {
	if ic.ModelType == nil {
		return InputResult{}, errNoModelType
	}
	r := ic.Request
	if err := r.ParseForm(); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return InputResult{}, fmt.Errorf("reading request body: %w", err)
		}
		return InputResult{}, api.ErrWithCode(api.ErrorCodeInvalidForm, err)
	}
	out := reflect.New(ic.ModelType)
	if err := decodeForm(r.PostForm, out.Interface()); err != nil {
		return InputResult{}, api.ErrWithCode(api.ErrorCodeInvalidForm, err)
	}
	return InputResult{Model: out.Interface()}, nil
}

func fieldByTag(rv reflect.Value, name string) reflect.Value {
	rt := rv.Type()
	for i := range rt.NumField() {
		ft := rt.Field(i)
		if ft.Tag.Get(formTag) == name {
			return rv.Field(i)
		}
		if ft.Anonymous && rv.Field(i).Kind() == reflect.Struct {
			if f := fieldByTag(rv.Field(i), name); f.IsValid() {
				return f
			}
		}
	}
	return reflect.Value{}
}

func decodeFormField(path []string, values []string, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeFormField(path, values, rv.Elem())
	case reflect.Struct:
		if len(path) == 0 {
			return fmt.Errorf("cannot set struct %s from a single value", rv.Type())
		}
		name := path[0]
		f := fieldByTag(rv, name)
		if !f.IsValid() {
			return fmt.Errorf("no %s field found in %s: %w", name, rv.Type().Name(), errNoSuchField)
		}
		if err := decodeFormField(path[1:], values, f); err != nil {
			return fmt.Errorf("decoding field %s: %w", name, err)
		}
		return nil
	case reflect.Slice:
		if len(path) > 0 && strings.EqualFold(path[0], "member") {
			path = path[1:]
		}
		if len(path) == 0 {
			if !isFormScalar(rv.Type().Elem()) {
				return fmt.Errorf("missing index for slice %s", rv.Type())
			}
			// Repeated keys ("tags=a&tags=b") append one element per value.
			for _, v := range values {
				elem := reflect.New(rv.Type().Elem()).Elem()
				if err := setFormScalar(elem, v); err != nil {
					return err
				}
				rv.Set(reflect.Append(rv, elem))
			}
			return nil
		}
		idx, err := strconv.Atoi(path[0])
		if err != nil {
			return fmt.Errorf("parsing index: %w", err)
		}
		if idx <= 0 {
			return errZeroIndex
		}
		if idx > rv.Len() {
			if idx > rv.Len()+1 {
				return fmt.Errorf("expecting index <= %d, got %d instead", rv.Len()+1, idx)
			}
			rv.Set(reflect.Append(rv, reflect.New(rv.Type().Elem()).Elem()))
		}
		return decodeFormField(path[1:], values, rv.Index(idx-1))
	}

	if len(path) > 0 {
		return fmt.Errorf("unexpected path %q for %s", strings.Join(path, "."), rv.Type())
	}
	return setFormScalar(rv, values[0])
}

func isFormScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func setFormScalar(rv reflect.Value, value string) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parsing int field: %w", err)
		}
		rv.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parsing uint field: %w", err)
		}
		rv.SetUint(u)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parsing float field: %w", err)
		}
		rv.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing bool field: %w", err)
		}
		rv.SetBool(v)
	default:
		return fmt.Errorf("cannot set value of type %s", rv.Type())
	}
	return nil
}

// decodeForm decodes values into out, which must be a pointer to a struct.
func decodeForm(values url.Values, out any) error {
	rv := reflect.ValueOf(out).Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("cannot decode form into %s", rv.Type())
	}
	keys := slices.SortedFunc(maps.Keys(values), compareFormKeys)
	for _, k := range keys {
		if err := decodeFormField(strings.Split(k, "."), values[k], rv); err != nil {
			return fmt.Errorf("decoding form value %s: %w", k, err)
		}
	}
	return nil
}

// compareFormKeys orders dotted keys segment by segment, comparing numeric
// segments as numbers, so every key under "items.1" precedes "items.2" and
// "items.9" precedes "items.10".
func compareFormKeys(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := range min(len(as), len(bs)) {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		var c int
		if aerr == nil && berr == nil {
			c = cmp.Compare(ai, bi)
		} else {
			c = strings.Compare(as[i], bs[i])
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}
