package format

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

const (
	xmlContentType  = "application/xml"
	defaultRootName = "Response"
)

// XMLOutput writes responses as XML. The root element is named after the
// Go type of the value and fields are named by their xml tag. A tag in
// the form "Items>item" wraps every slice element in an "item" element
// inside "Items". Map entries are written as elements carrying a "key"
// attribute, sorted by key.
type XMLOutput struct {
	// Namespace, when not empty, is set as the xmlns attribute of the root.
	Namespace string
}

func (f *XMLOutput) CanWrite(mediaType string) bool {
	return mediaType == xmlContentType || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml")
}

func (f *XMLOutput) ContentType() string {
	return xmlContentType
}

func (f *XMLOutput) Write(ctx context.Context, w http.ResponseWriter, status int, v any) error {
	s, err := f.encode(v)
	if err != nil {
		return fmt.Errorf("encoding XML response: %w", err)
	}
	w.Header().Set("Content-Type", xmlContentType)
	w.WriteHeader(status)
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("writing response to client: %w", err)
	}
	return nil
}

func (f *XMLOutput) encode(v any) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	rv := reflect.ValueOf(v)
	root := doc.CreateElement(rootName(rv))
	if f.Namespace != "" {
		root.CreateAttr("xmlns", f.Namespace)
	}
	if err := encodeXMLFields(root, rv, "item"); err != nil {
		return "", err
	}

	doc.Indent(2)
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serializing XML: %w", err)
	}
	return s, nil
}

func rootName(rv reflect.Value) string {
	if !rv.IsValid() {
		return defaultRootName
	}
	rt := rv.Type()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return defaultRootName
	}
	return rt.Name()
}

// xmlFieldName returns the element name for a field and, for "a>b"
// tags, the name of the inner element.
func xmlFieldName(field reflect.StructField) (name string, inner string, skip bool) {
	tag := field.Tag.Get("xml")
	if tag == "-" {
		return "", "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	if sep := strings.IndexByte(name, '>'); sep >= 0 {
		return name[:sep], name[sep+1:], false
	}
	return name, "", false
}

func encodeXMLFields(el *etree.Element, rv reflect.Value, name string) error {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Struct:
		if rv.CanInterface() {
			if t, ok := rv.Interface().(time.Time); ok {
				el.SetText(t.Format(time.RFC3339Nano))
				break
			}
		}
		rt := rv.Type()
		for i := range rt.NumField() {
			typeField := rt.Field(i)
			if !typeField.IsExported() && !typeField.Anonymous {
				continue
			}
			fieldName, innerName, skip := xmlFieldName(typeField)
			if skip {
				continue
			}
			field := rv.Field(i)
			// Nil fields are omitted so clients can tell them apart from
			// zero values.
			if (field.Kind() == reflect.Pointer || field.Kind() == reflect.Interface) && field.IsNil() {
				continue
			}
			fieldElement := el
			if !typeField.Anonymous {
				fieldElement = el.CreateElement(fieldName)
			}
			if innerName == "" {
				innerName = "item"
			}
			if err := encodeXMLFields(fieldElement, field, innerName); err != nil {
				return fmt.Errorf("encoding field %s: %w", fieldName, err)
			}
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return encodeXMLFields(el, rv.Elem(), name)
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			itemEl := el.CreateElement(name)
			if err := encodeXMLFields(itemEl, rv.Index(i), "item"); err != nil {
				return fmt.Errorf("encoding item %d: %w", i, err)
			}
		}
	case reflect.Map:
		// One element per entry, ordered by key so output is stable.
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			key := fmt.Sprint(k.Interface())
			itemEl := el.CreateElement(name)
			itemEl.CreateAttr("key", key)
			if err := encodeXMLFields(itemEl, rv.MapIndex(k), "item"); err != nil {
				return fmt.Errorf("encoding key %s: %w", key, err)
			}
		}
	case reflect.String:
		el.SetText(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		el.SetText(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		el.SetText(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		el.SetText(strconv.FormatFloat(rv.Float(), 'g', -1, rv.Type().Bits()))
	case reflect.Bool:
		el.SetText(strconv.FormatBool(rv.Bool()))
	default:
		return fmt.Errorf("cannot encode type %s", rv.Type())
	}
	return nil
}
