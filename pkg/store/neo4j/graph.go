package neo4j

import (
	"context"

	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// Publish replaces the published graph of machine with g.
func Publish[S ~string](ctx context.Context, store *Store, machine string, g *fsm.Graph[S]) error {
	return store.PublishDocument(ctx, machine, toStrings(fsm.DocumentOf(g)))
}

// Load reads the published graph of machine and builds it with state
// type S.
func Load[S ~string](ctx context.Context, store *Store, machine string) (*fsm.Graph[S], error) {
	doc, err := store.Document(ctx, machine)
	if err != nil {
		return nil, err
	}
	return fromStrings[S](doc).Build()
}

func toStrings[S ~string](doc fsm.GraphDocument[S]) fsm.GraphDocument[string] {
	out := fsm.GraphDocument[string]{
		States:      make([]string, len(doc.States)),
		Transitions: make(map[string][]string, len(doc.Transitions)),
	}
	for i, s := range doc.States {
		out.States[i] = string(s)
	}
	for from, targets := range doc.Transitions {
		conv := make([]string, len(targets))
		for i, t := range targets {
			conv[i] = string(t)
		}
		out.Transitions[string(from)] = conv
	}
	return out
}

func fromStrings[S ~string](doc fsm.GraphDocument[string]) fsm.GraphDocument[S] {
	out := fsm.GraphDocument[S]{
		States:      make([]S, len(doc.States)),
		Transitions: make(map[S][]S, len(doc.Transitions)),
	}
	for i, s := range doc.States {
		out.States[i] = S(s)
	}
	for from, targets := range doc.Transitions {
		conv := make([]S, len(targets))
		for i, t := range targets {
			conv[i] = S(t)
		}
		out.Transitions[S(from)] = conv
	}
	return out
}
