package types

import (
	"fmt"
	"strings"
)

// Step is one resource-mediated conversion within a path.
type Step struct {
	Resource string   `json:"resource"`
	Source   Ontology `json:"source"`
	Target   Ontology `json:"target"`
}

// Path is an ordered list of steps converting from one ontology to another.
type Path struct {
	Steps []Step `json:"steps"`

	// Priority is the declared priority of the path's highest-priority
	// resource (lower value wins, matching resource declarations).
	Priority int `json:"priority"`
}

// Source returns the path's starting ontology.
func (p Path) Source() Ontology {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[0].Source
}

// Target returns the path's final ontology.
func (p Path) Target() Ontology {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[len(p.Steps)-1].Target
}

// Hops returns the number of steps.
func (p Path) Hops() int { return len(p.Steps) }

// String renders the path as "SRC -[r1]-> MID -[r2]-> DST".
func (p Path) String() string {
	if len(p.Steps) == 0 {
		return "(empty path)"
	}
	var b strings.Builder
	b.WriteString(string(p.Steps[0].Source))
	for _, s := range p.Steps {
		fmt.Fprintf(&b, " -[%s]-> %s", s.Resource, s.Target)
	}
	return b.String()
}
