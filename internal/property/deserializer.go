package property

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/tidwall/gjson"
)

var (
	// ErrTypeMismatch is returned when the JSON shape does not match the property definition.
	ErrTypeMismatch = errors.New("property value does not match its definition")
	// ErrInvalidJSON is returned for malformed property JSON.
	ErrInvalidJSON = errors.New("invalid property json")
)

// Deserializer decodes raw JSON property values using the data dictionary.
// It is safe for concurrent use when the Lookup is.
type Deserializer struct {
	lookup dictionary.Lookup
}

// NewDeserializer returns a Deserializer backed by lookup. A nil lookup treats every
// property as undefined.
func NewDeserializer(lookup dictionary.Lookup) *Deserializer {
	return &Deserializer{lookup: lookup}
}

// Decode decodes the raw JSON value of property name. A JSON null yields a nil Value.
//
// The variant follows the property definition: multi-valued properties expect an
// array, mltext expects [{locale, value}], content expects an object, everything
// else is a Single. A property without a definition decodes as a Single.
func (d *Deserializer) Decode(name dictionary.QName, raw []byte) (Value, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: property %s", ErrInvalidJSON, name)
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.Null {
		return nil, nil
	}

	var def dictionary.PropertyDefinition
	var ok bool
	if d.lookup != nil {
		def, ok = d.lookup.Property(name)
	}
	if !ok {
		v, err := single(r)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		return v, nil
	}

	if def.Multiple {
		if !r.IsArray() {
			return nil, fmt.Errorf("%w: property %s expected array, got %s", ErrTypeMismatch, name, kindOf(r))
		}
		elems := r.Array()
		multi := make(Multi, 0, len(elems))
		for i, elem := range elems {
			v, err := decodeSingle(def.DataType, elem)
			if err != nil {
				return nil, fmt.Errorf("property %s[%d]: %w", name, i, err)
			}
			multi = append(multi, v)
		}
		return multi, nil
	}

	v, err := decodeSingle(def.DataType, r)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	return v, nil
}

func decodeSingle(dt dictionary.DataType, r gjson.Result) (Value, error) {
	if r.Type == gjson.Null {
		return nil, nil
	}
	switch dt {
	case dictionary.DataTypeMLText:
		return mltext(r)
	case dictionary.DataTypeContent:
		return content(r)
	default:
		return single(r)
	}
}

func single(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.String:
		return Single(r.Str), nil
	case gjson.Number, gjson.True, gjson.False:
		return Single(r.Raw), nil
	default:
		return nil, fmt.Errorf("%w: expected scalar, got %s", ErrTypeMismatch, kindOf(r))
	}
}

func mltext(r gjson.Result) (Value, error) {
	if !r.IsArray() {
		return nil, fmt.Errorf("%w: mltext expected array, got %s", ErrTypeMismatch, kindOf(r))
	}
	m := MLText{}
	var err error
	r.ForEach(func(_, pair gjson.Result) bool {
		if !pair.IsObject() {
			err = fmt.Errorf("%w: mltext entry expected object, got %s", ErrTypeMismatch, kindOf(pair))
			return false
		}
		// a null value leaves the locale out
		if v := pair.Get("value"); v.Exists() && v.Type != gjson.Null {
			m[pair.Get("locale").String()] = v.String()
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func content(r gjson.Result) (Value, error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("%w: content expected object, got %s", ErrTypeMismatch, kindOf(r))
	}
	c := Content{
		Locale:   r.Get("locale").String(),
		Size:     r.Get("size").Int(),
		Encoding: r.Get("encoding").String(),
		Mimetype: r.Get("mimetype").String(),
	}
	if id := r.Get("contentId"); id.Exists() && id.Type != gjson.Null {
		v := id.Int()
		c.ContentID = &v
	}
	return c, nil
}

func kindOf(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	default:
		return r.Type.String()
	}
}
