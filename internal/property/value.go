// Package property holds typed node property values and the deserializer that
// turns their JSON wire form into them.
package property

import (
	"encoding/json"
	"maps"
	"sort"
	"strings"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindSingle Kind = iota
	KindMLText
	KindContent
	KindMulti
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMLText:
		return "mltext"
	case KindContent:
		return "content"
	case KindMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Value is a decoded property value. The set of variants is closed:
// Single, MLText, Content and Multi.
type Value interface {
	Kind() Kind
	json.Marshaler
	sealed()
}

// Single is a scalar value in its string form.
type Single string

// MLText maps a locale to its text.
type MLText map[string]string

// Content describes a content property.
type Content struct {
	Locale    string
	Size      int64
	Encoding  string
	Mimetype  string
	ContentID *int64
}

// Multi is an ordered multi-valued property. Elements may be nil for null entries.
type Multi []Value

func (Single) Kind() Kind  { return KindSingle }
func (MLText) Kind() Kind  { return KindMLText }
func (Content) Kind() Kind { return KindContent }
func (Multi) Kind() Kind   { return KindMulti }

func (Single) sealed()  {}
func (MLText) sealed()  {}
func (Content) sealed() {}
func (Multi) sealed()   {}

// String returns the raw value.
func (s Single) String() string { return string(s) }

// MarshalJSON encodes the value as a JSON string.
func (s Single) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

type mlEntry struct {
	Locale string `json:"locale"`
	Value  string `json:"value"`
}

// Locales returns the locales in sorted order.
func (m MLText) Locales() []string {
	locales := make([]string, 0, len(m))
	for l := range m {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	return locales
}

// Text returns the text for locale, falling back to the language part
// (en_GB -> en) and then to any locale.
func (m MLText) Text(locale string) string {
	if v, ok := m[locale]; ok {
		return v
	}
	if lang, _, found := strings.Cut(locale, "_"); found {
		if v, ok := m[lang]; ok {
			return v
		}
	}
	if locales := m.Locales(); len(locales) > 0 {
		return m[locales[0]]
	}
	return ""
}

// MarshalJSON encodes the value as an array of {locale, value} pairs.
func (m MLText) MarshalJSON() ([]byte, error) {
	entries := make([]mlEntry, 0, len(m))
	for _, l := range m.Locales() {
		entries = append(entries, mlEntry{Locale: l, Value: m[l]})
	}
	return json.Marshal(entries)
}

type contentJSON struct {
	Locale    string `json:"locale,omitempty"`
	Size      int64  `json:"size"`
	Encoding  string `json:"encoding,omitempty"`
	Mimetype  string `json:"mimetype,omitempty"`
	ContentID *int64 `json:"contentId,omitempty"`
}

// MarshalJSON encodes the value as a content object.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON(c))
}

// MarshalJSON encodes the value as an array.
func (m Multi) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(m))
}

// Clone returns a deep copy of v. A nil value stays nil.
func Clone(v Value) Value {
	switch t := v.(type) {
	case MLText:
		return maps.Clone(t)
	case Content:
		if t.ContentID != nil {
			id := *t.ContentID
			t.ContentID = &id
		}
		return t
	case Multi:
		if t == nil {
			return Multi(nil)
		}
		out := make(Multi, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}
