package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/composer/pkg/dictionary"
)

func newImportDictCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import-dict",
		Short: "Import a JMdict-Simplified file into the lexicon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if path == "" {
				path = a.cfg.Dictionary.Path
			}
			entries, err := a.loadDictionary(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to load dictionary: %w", err)
			}

			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			count, err := dictionary.NewImporter(conn, entries).WithLogger(a.logger).Import(ctx)
			if err != nil {
				return fmt.Errorf("failed to import dictionary: %w", err)
			}
			fmt.Fprintf(a.out, "imported %d lexicon entries from %d dictionary entries\n", count, len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Path to JMdict-Simplified JSON (defaults to the configured path)")
	return cmd
}
