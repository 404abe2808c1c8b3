package model

import "fmt"

// Edge is a directed dependency in the model graph
type Edge struct {
	From string
	To   string
}

// Edges lists the declared relationships: fixed effects and subject
// deviations feed the derived mu, psi and phi, the scales feed the
// deviations, and the derived quantities feed each subject's series.
func (l *Layout) Edges() []Edge {
	derived := [NumEffects]string{"mu", "psi", "phi"}
	var edges []Edge

	for i := 0; i < l.NSubj; i++ {
		y := fmt.Sprintf("y[%d]", i+1)
		for k := 0; k < NumEffects; k++ {
			d := fmt.Sprintf("%s[%d]", derived[k], i+1)
			edges = append(edges, Edge{From: l.Params[l.GammaIndex(k)].Name, To: d})
			if l.Hierarchical {
				u := l.Params[l.UIndex(i, k)].Name
				edges = append(edges,
					Edge{From: l.Params[l.TauIndex(k)].Name, To: u},
					Edge{From: u, To: d},
				)
			}
			edges = append(edges, Edge{From: d, To: y})
		}
	}

	return edges
}
