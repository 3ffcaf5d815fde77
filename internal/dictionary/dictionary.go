package dictionary

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DataType names a property data type.
type DataType string

// Data types the property deserializer distinguishes. Anything else decodes as text.
const (
	DataTypeText     DataType = "text"
	DataTypeMLText   DataType = "mltext"
	DataTypeContent  DataType = "content"
	DataTypeInt      DataType = "int"
	DataTypeLong     DataType = "long"
	DataTypeFloat    DataType = "float"
	DataTypeDouble   DataType = "double"
	DataTypeDate     DataType = "date"
	DataTypeDatetime DataType = "datetime"
	DataTypeBoolean  DataType = "boolean"
	DataTypeQName    DataType = "qname"
	DataTypeNodeRef  DataType = "noderef"
	DataTypeLocale   DataType = "locale"
	DataTypeAny      DataType = "any"
)

// PropertyDefinition describes how a property is typed in the data dictionary.
type PropertyDefinition struct {
	Name     QName
	DataType DataType
	Multiple bool
}

// Lookup resolves property definitions. Implementations must be safe for concurrent use.
type Lookup interface {
	// Property returns the definition for name, or false when the dictionary does not know it.
	Property(name QName) (PropertyDefinition, bool)
}

// Dictionary is an in-memory Lookup.
type Dictionary struct {
	mu         sync.RWMutex
	properties map[QName]PropertyDefinition
}

// New returns a Dictionary holding defs.
func New(defs ...PropertyDefinition) *Dictionary {
	d := &Dictionary{properties: make(map[QName]PropertyDefinition, len(defs))}
	for _, def := range defs {
		d.properties[def.Name] = def
	}
	return d
}

// Property implements Lookup.
func (d *Dictionary) Property(name QName) (PropertyDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.properties[name]
	return def, ok
}

// Register adds or replaces a definition.
func (d *Dictionary) Register(def PropertyDefinition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties[def.Name] = def
}

// Definitions returns every definition ordered by name.
func (d *Dictionary) Definitions() []PropertyDefinition {
	d.mu.RLock()
	defs := make([]PropertyDefinition, 0, len(d.properties))
	for _, def := range d.properties {
		defs = append(defs, def)
	}
	d.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name.String() < defs[j].Name.String()
	})
	return defs
}

// Len returns the number of definitions.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.properties)
}

// fileFormat is the YAML layout of a dictionary file.
type fileFormat struct {
	Namespaces Namespaces `yaml:"namespaces"`
	Properties []struct {
		Name     string   `yaml:"name"`
		Type     DataType `yaml:"type"`
		Multiple bool     `yaml:"multiple"`
	} `yaml:"properties"`
}

// ParseYAML builds a Dictionary from YAML:
//
//	namespaces:
//	  cm: http://www.alfresco.org/model/content/1.0
//	properties:
//	  - name: cm:title
//	    type: mltext
func ParseYAML(data []byte) (*Dictionary, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary: %w", err)
	}

	d := New()
	for i, p := range f.Properties {
		name, err := f.Namespaces.Resolve(p.Name)
		if err != nil {
			return nil, fmt.Errorf("property %d: %w", i, err)
		}
		typ := p.Type
		if typ == "" {
			typ = DataTypeText
		}
		d.Register(PropertyDefinition{Name: name, DataType: typ, Multiple: p.Multiple})
	}
	return d, nil
}

// LoadFile reads a YAML dictionary file.
func LoadFile(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary file: %w", err)
	}
	return ParseYAML(data)
}
