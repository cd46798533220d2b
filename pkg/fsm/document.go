package fsm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// GraphDocument is the serializable form of a [Graph] whose states are
// strings. It is read from YAML or JSON:
//
//	states: [created, partial, completed]
//	transitions:
//	  created: [partial, completed]
//	  partial: [completed]
//
// The first state is the initial state. Transitions are applied in the
// order of States, so map ordering in the source document does not
// matter.
type GraphDocument[S ~string] struct {
	States      []S       `yaml:"states" json:"states"`
	Transitions map[S][]S `yaml:"transitions" json:"transitions"`
}

// Build validates the document and returns the [Graph]. Validation is the
// same as [GraphBuilder.Build], plus a check that every transition source
// is a declared state.
func (d GraphDocument[S]) Build() (*Graph[S], error) {
	b := NewGraphBuilder[S]().State(d.States...)
	declared := make(map[S]struct{}, len(d.States))
	for _, s := range d.States {
		declared[s] = struct{}{}
		if targets, ok := d.Transitions[s]; ok {
			b.Transition(s, targets...)
		}
	}
	for from := range d.Transitions {
		if _, ok := declared[from]; !ok {
			return nil, sserr.Newf(sserr.CodeValidation,
				"fsm: transition from undeclared state %q", string(from))
		}
	}
	return b.Build()
}

// DocumentOf returns the serializable form of g.
func DocumentOf[S ~string](g *Graph[S]) GraphDocument[S] {
	doc := GraphDocument[S]{
		States:      g.States(),
		Transitions: make(map[S][]S, len(g.targets)),
	}
	for from, targets := range g.targets {
		doc.Transitions[from] = append([]S(nil), targets...)
	}
	return doc
}

// ParseGraph decodes a YAML or JSON graph document and builds the graph.
// JSON input is detected by a leading '{'. Decoding failures return a
// [*sserr.Error] with code [sserr.CodeValidationFormat].
func ParseGraph[S ~string](data []byte) (*Graph[S], error) {
	var doc GraphDocument[S]
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
				"fsm: failed to decode JSON graph document")
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
				"fsm: failed to decode YAML graph document")
		}
	}
	return doc.Build()
}

// LoadGraphFile reads a graph document from path. The file extension is
// not consulted; see [ParseGraph] for format detection. Paths containing
// ".." are rejected to prevent directory traversal.
func LoadGraphFile[S ~string](path string) (*Graph[S], error) {
	if strings.Contains(path, "..") {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"fsm: graph file path must not contain '..': %s", path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"fsm: failed to read graph file %s", path)
	}
	return ParseGraph[S](data)
}

// MarshalGraph encodes g as a YAML graph document that [ParseGraph]
// reads back into an equal graph.
func MarshalGraph[S ~string](g *Graph[S]) ([]byte, error) {
	data, err := yaml.Marshal(DocumentOf(g))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "fsm: failed to encode graph document")
	}
	return data, nil
}
