// Package types defines the shared data model for the resolution engine:
// identifiers, ontologies, conversion paths, and mapping records. All types
// here are plain values with no behavior beyond construction and formatting,
// so every other package can depend on them without cycles.
package types

import (
	"fmt"
	"strings"
)

// Ontology names an identifier namespace owned by one data authority,
// e.g. UNIPROT, ENSEMBL_GENE, HMDB, GENE_NAME.
type Ontology string

// String returns the ontology name.
func (o Ontology) String() string { return string(o) }

// Identifier is an immutable (ontology, raw value) pair. A composite
// identifier joins several atomic identifiers of the same ontology with a
// separator; splitting is the composite package's job, but the separator
// check lives here so the type is self-describing.
type Identifier struct {
	Ontology Ontology `json:"ontology"`
	Value    string   `json:"value"`
}

// NewIdentifier creates an identifier with surrounding whitespace trimmed.
func NewIdentifier(ont Ontology, value string) Identifier {
	return Identifier{Ontology: ont, Value: strings.TrimSpace(value)}
}

// IsComposite reports whether the identifier contains the given separator
// and would split into more than one non-empty component.
func (id Identifier) IsComposite(sep string) bool {
	if sep == "" || !strings.Contains(id.Value, sep) {
		return false
	}
	parts := 0
	for _, p := range strings.Split(id.Value, sep) {
		if strings.TrimSpace(p) != "" {
			parts++
		}
	}
	return parts > 1
}

// String returns "ONTOLOGY:value" for logs and provenance.
func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s", id.Ontology, id.Value)
}
