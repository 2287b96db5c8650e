package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/composer/pkg/grammar"
)

func newLearnCmd(a *app) *cobra.Command {
	var (
		context string
		words   []string
	)
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Load the bigram grammar from recorded sentences",
		Long: `Load the bigram counts recorded by segment and report their size. With
--context and --word, print the log probability the grammar assigns to the
word following the context.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			b := grammar.New(
				grammar.WithPenalty(a.cfg.Grammar.Penalty),
				grammar.WithMaxContext(a.cfg.Grammar.MaxContext),
				grammar.WithLogger(a.logger),
			)
			rows, err := b.LoadFromDB(conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "loaded %d bigram rows, %d distinct pairs\n", rows, b.Len())
			for _, w := range words {
				fmt.Fprintf(a.out, "%s|%s\t%.4f\n", context, w, b.Query(context, w, false))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&context, "context", "", "Left context for --word queries")
	cmd.Flags().StringSliceVar(&words, "word", nil, "Word to score after --context (repeatable)")
	return cmd
}
