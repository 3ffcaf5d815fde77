// Package dictionary models the repository data dictionary as seen by the
// tracking client: qualified names and property definitions.
package dictionary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQName is returned when a string is not a valid qualified name.
var ErrInvalidQName = errors.New("invalid qualified name")

// QName is a namespace-qualified name, written {uri}local on the wire.
type QName struct {
	Namespace string
	Local     string
}

// NewQName returns the QName for namespace and local name.
func NewQName(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

// ParseQName parses the {uri}local form. A bare local name has an empty namespace.
func ParseQName(s string) (QName, error) {
	if s == "" {
		return QName{}, fmt.Errorf("%w: empty", ErrInvalidQName)
	}
	if s[0] != '{' {
		if strings.ContainsAny(s, "{}") {
			return QName{}, fmt.Errorf("%w: %q", ErrInvalidQName, s)
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 || end == len(s)-1 {
		return QName{}, fmt.Errorf("%w: %q", ErrInvalidQName, s)
	}
	return QName{Namespace: s[1:end], Local: s[end+1:]}, nil
}

// MustParseQName is ParseQName that panics on error. Intended for literals.
func MustParseQName(s string) QName {
	q, err := ParseQName(s)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the {uri}local form.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// IsZero reports whether q is the zero QName.
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

// MarshalText implements encoding.TextMarshaler so QName works as a JSON map key.
func (q QName) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *QName) UnmarshalText(text []byte) error {
	parsed, err := ParseQName(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Namespaces maps prefixes to namespace URIs.
type Namespaces map[string]string

// Resolve expands a prefixed name (cm:title) or passes a {uri}local name through.
func (n Namespaces) Resolve(name string) (QName, error) {
	if strings.HasPrefix(name, "{") {
		return ParseQName(name)
	}
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return ParseQName(name)
	}
	uri, found := n[prefix]
	if !found {
		return QName{}, fmt.Errorf("%w: unknown prefix %q in %q", ErrInvalidQName, prefix, name)
	}
	if local == "" {
		return QName{}, fmt.Errorf("%w: %q", ErrInvalidQName, name)
	}
	return QName{Namespace: uri, Local: local}, nil
}
