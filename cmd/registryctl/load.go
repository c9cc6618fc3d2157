package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"schemaregistry/internal/definition"
	defservice "schemaregistry/internal/definition/service"
	"schemaregistry/internal/eventstore"
	dErrors "schemaregistry/pkg/domain-errors"
)

type loadOptions struct {
	activate bool
	actor    string
}

func newLoadCmd() *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "load <schema-file>...",
		Short: "Load schema files as definitions",
		Long: `Load each schema file as a new definition, recording the file name as its
source. With --activate, each loaded definition is validated and activated.

Examples:
  registryctl load schemas/*.json
  registryctl load schemas/student.yaml --activate --actor ops`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := defservice.New(eventstore.NewPostgres(pool))
			return loadFiles(ctx, cmd.OutOrStdout(), svc, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.activate, "activate", false, "validate and activate each loaded definition")
	cmd.Flags().StringVar(&opts.actor, "actor", "registryctl", "actor recorded on the events")
	return cmd
}

// definitionLoader is the part of the definition service load needs.
type definitionLoader interface {
	Load(ctx context.Context, title, schemaText, sourceFile, actor string) (definition.State, error)
	Validate(ctx context.Context, title, actor string) (definition.State, error)
	Activate(ctx context.Context, title, actor string) (definition.State, error)
}

// loadFiles loads every file it can and reports the rest. It fails when any
// file failed.
func loadFiles(ctx context.Context, out io.Writer, svc definitionLoader, paths []string, opts loadOptions) error {
	var errs []error
	for _, path := range paths {
		st, err := loadFile(ctx, svc, path, opts)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(out, "ok   %s -> %s (%s)\n", path, st.Title, st.Status)
	}
	return errors.Join(errs...)
}

func loadFile(ctx context.Context, svc definitionLoader, path string, opts loadOptions) (definition.State, error) {
	f, err := readSchemaFile(path)
	if err != nil {
		return definition.State{}, err
	}
	st, err := svc.Load(ctx, f.Title, f.Text, filepath.Base(path), opts.actor)
	if err != nil {
		return definition.State{}, err
	}
	if !opts.activate {
		return st, nil
	}

	st, err = svc.Validate(ctx, f.Title, opts.actor)
	if err != nil {
		return definition.State{}, err
	}
	if st.Status == definition.StatusInvalid {
		return st, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("schema is invalid: %v", st.ValidationErrors))
	}
	return svc.Activate(ctx, f.Title, opts.actor)
}
