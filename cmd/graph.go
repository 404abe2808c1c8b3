package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/dsem/model"
)

func newGraphCmd(sp *startupParams) *cobra.Command {
	var subjects int

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print a graphviz description of the model graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return graphOutput(sp, subjects)
		},
	}
	cmd.Flags().IntVar(&subjects, "subjects", 2, "Number of subjects to draw")
	cmd.Flags().StringVarP(&sp.traceFile, "trace", "t", "", "Write the graph here instead of stdout")
	return cmd
}

// graphOutput writes the model graph for the given number of subjects
func graphOutput(sp *startupParams, subjects int) error {
	layout, err := model.NewLayout(subjects)
	if err != nil {
		return err
	}

	if err := sp.openTrace(); err != nil {
		return err
	}
	defer sp.closeTrace()

	var target *log.Logger
	if len(sp.traceFile) > 0 {
		sp.out.Printf("Writing model graph to trace file %v\n", sp.traceFile)
		target = sp.trace
	} else {
		target = sp.out
	}

	target.Printf("digraph DSEM {\n")
	for _, p := range layout.Params {
		target.Printf("    %q [shape=ellipse];\n", p.Name)
	}
	for i := 0; i < subjects; i++ {
		target.Printf("    \"y[%d]\" [shape=box];\n", i+1)
	}
	for _, e := range layout.Edges() {
		target.Printf("    %q -> %q;\n", e.From, e.To)
	}
	target.Printf("}\n")

	return nil
}
