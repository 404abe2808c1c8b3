package main

import "github.com/CraigKelly/dsem/cmd"

// TODO: correlated random effects (LKJ prior on the deviation correlations)
// would need a Cholesky-factor transform in model.Layout

func main() {
	cmd.Execute()
}
