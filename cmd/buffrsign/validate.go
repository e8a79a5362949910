package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buffrsign/esign-orchestrator/internal/definition"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <template.yaml>...",
		Short: "Validate workflow template definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0

			for _, path := range args {
				tmpl, err := definition.LoadFile(path)
				if err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					failed++
					continue
				}

				errs := tmpl.Validate()
				if len(errs) == 0 {
					fmt.Fprintf(out, "✓ %s (%s, %d steps)\n", path, tmpl.Name, len(tmpl.Steps))
					continue
				}

				failed++
				fmt.Fprintf(out, "✗ %s\n", path)
				for _, e := range errs {
					fmt.Fprintf(out, "    - %s\n", e)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d templates invalid", failed, len(args))
			}
			return nil
		},
	}
}
