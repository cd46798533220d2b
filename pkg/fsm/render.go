package fsm

import "strings"

// Mermaid renders the graph as a Mermaid stateDiagram-v2 document. The
// initial state is marked with an entry arrow and terminal states with an
// exit arrow. States and transitions appear in declaration order, so the
// output is stable across calls.
func (g *Graph[S]) Mermaid() string {
	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")

	b.WriteString("\t[*] --> ")
	b.WriteString(mermaidID(label(g.Initial())))
	b.WriteByte('\n')

	// Declare every state so that isolated states are still drawn.
	for _, s := range g.states {
		id := mermaidID(label(s))
		b.WriteString("\tstate \"")
		b.WriteString(label(s))
		b.WriteString("\" as ")
		b.WriteString(id)
		b.WriteByte('\n')
	}

	for _, from := range g.states {
		for _, to := range g.targets[from] {
			b.WriteByte('\t')
			b.WriteString(mermaidID(label(from)))
			b.WriteString(" --> ")
			b.WriteString(mermaidID(label(to)))
			b.WriteByte('\n')
		}
	}

	for _, s := range g.states {
		if g.Terminal(s) {
			b.WriteByte('\t')
			b.WriteString(mermaidID(label(s)))
			b.WriteString(" --> [*]\n")
		}
	}

	return b.String()
}

// mermaidID turns a state label into an identifier Mermaid accepts.
// Anything other than letters, digits and underscores becomes an
// underscore.
func mermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
