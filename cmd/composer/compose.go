package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/japaniel/composer/pkg/grammar"
	"github.com/japaniel/composer/pkg/poet"
)

func newComposeCmd(a *app) *cobra.Command {
	var (
		preceding string
		showWords bool
	)
	cmd := &cobra.Command{
		Use:   "compose <kana>...",
		Short: "Convert kana input into its best sentence",
		Long: `Convert each kana argument into the highest scoring sentence the lexicon
allows. Arguments are composed in order, each with the previous result as
its left context.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			lx, err := a.loadLexicon(ctx, conn)
			if err != nil {
				return err
			}
			scorer, err := a.scorer(conn)
			if err != nil {
				return err
			}
			words, closeWords := a.userWords()
			defer closeWords()
			if words != nil {
				scorer = grammar.Combine(scorer, words.Snapshot(ctx))
			}

			p := poet.New(a.poetOptions(scorer)...)
			for _, input := range args {
				input = strings.TrimSpace(input)
				g, n := lx.WordGraph(input)
				s, err := p.MakeSentence(g, n, preceding)
				if err != nil {
					if !isSkippable(err) {
						return err
					}
					msg := "no reading"
					if errors.Is(err, poet.ErrEdgeBudget) {
						msg = "input too ambiguous"
					}
					fmt.Fprintf(a.out, "%s\t(%s)\n", input, msg)
					continue
				}
				if showWords {
					fmt.Fprintf(a.out, "%s\t%.4f\t%s\n", s.Text(), s.Weight(), s)
				} else {
					fmt.Fprintln(a.out, s.Text())
				}
				preceding = s.Text()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&preceding, "preceding", "", "Text preceding the first input")
	cmd.Flags().BoolVarP(&showWords, "words", "w", false, "Print the weight and word split")
	return cmd
}
