package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hypersearch/internal/output"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/server"
)

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	var principal string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "suggest <partial query>",
		Short: "Complete a partial query",
		Long: `Print query suggestions from the principal's history, popular queries,
and templates. Inputs shorter than the configured minimum yield nothing.`,
		Example: `  hypersearch suggest qua
  hypersearch suggest "climate ch" --principal alice --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suggestions, err := runSuggest(cmd.Context(), opts, principal, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(server.SuggestResponse{Suggestions: suggestions})
			}
			output.New(cmd.OutOrStdout()).List(suggestions)
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", query.AnonymousPrincipal, "Principal whose history is consulted")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runSuggest(ctx context.Context, opts *rootOptions, principal, partial string) ([]string, error) {
	unlock, err := lockDataDir(opts.cfg, "stop 'hypersearch serve' and use POST /api/search/suggestions")
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := buildApp(ctx, opts.cfg, opts.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	suggestions := a.suggest.Suggest(ctx, principal, partial)
	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}
