package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schemaregistry/internal/projection"
)

func newDDLCmd() *cobra.Command {
	var columns bool
	cmd := &cobra.Command{
		Use:   "ddl <schema-file>",
		Short: "Print the projection DDL for a schema file",
		Long: `Print the CREATE TABLE and CREATE INDEX statements the projector issues
when a definition with this schema is activated.

Examples:
  registryctl ddl schemas/student.json
  registryctl ddl schemas/teacher.yaml --columns`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}
			syn, err := projection.SynthesizeText(f.Text)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}

			out := cmd.OutOrStdout()
			if columns {
				for _, a := range syn.Attributes {
					fmt.Fprintf(out, "%s\t%s\t%s\n", a.Column(), a.Type, a.Expression)
				}
				return nil
			}
			for _, stmt := range syn.Statements() {
				fmt.Fprintln(out, stmt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&columns, "columns", false, "list flattened attributes instead of DDL")
	return cmd
}
