package resolve

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/poiesic/graphrag/core"
	"gopkg.in/yaml.v3"
)

//go:embed dictionary.yaml
var defaultDictionary []byte

// Dictionary maps curated spelling variants onto canonical names, per type.
//
// The YAML form is type -> canonical name -> variants:
//
//	Input:
//	  mancozeb: [dithane, manzeb]
type Dictionary struct {
	canonical map[core.EntityType]map[string]string
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{canonical: make(map[core.EntityType]map[string]string)}
}

// DefaultDictionary returns the built-in agricultural dictionary.
func DefaultDictionary() *Dictionary {
	d, err := ParseDictionary(defaultDictionary, core.DefaultTaxonomy())
	if err != nil {
		panic(fmt.Sprintf("built-in dictionary: %v", err))
	}
	return d
}

// LoadDictionary reads a YAML dictionary file.
func LoadDictionary(path string, taxonomy core.Taxonomy) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDictionary(data, taxonomy)
}

// ParseDictionary decodes a YAML dictionary. Types outside the taxonomy are
// rejected.
func ParseDictionary(data []byte, taxonomy core.Taxonomy) (*Dictionary, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}

	d := NewDictionary()
	for typeName, entries := range raw {
		entityType, ok := taxonomy.ParseEntityType(typeName)
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownEntityType, typeName)
		}
		for canonical, variants := range entries {
			for _, variant := range variants {
				d.Add(entityType, canonical, variant)
			}
		}
	}
	return d, nil
}

// Add maps variant onto canonical for a type.
func (d *Dictionary) Add(entityType core.EntityType, canonical, variant string) {
	m, ok := d.canonical[entityType]
	if !ok {
		m = make(map[string]string)
		d.canonical[entityType] = m
	}
	if key := Normalize(variant); key != "" {
		m[key] = canonical
	}
}

// Canonical returns the canonical name for a normalized variant key.
func (d *Dictionary) Canonical(entityType core.EntityType, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.canonical[entityType][key]
	return name, ok
}

// Len returns the number of variants across all types.
func (d *Dictionary) Len() int {
	n := 0
	for _, m := range d.canonical {
		n += len(m)
	}
	return n
}
