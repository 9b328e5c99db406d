package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/output"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/server"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	searchType string
	modalities []string
	filters    []string
	format     string // "text", "json"
	principal  string
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var sopts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a search in-process",
		Long: `Run one search through the full pipeline (agents, retrieval, fusion)
without starting the HTTP server.`,
		Example: `  hypersearch search "quantum computing"
  hypersearch search "solar panels" --type quick --modality text --modality image
  hypersearch search "transformers" --filter lang=en --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, opts, strings.Join(args, " "), sopts)
		},
	}

	cmd.Flags().StringVarP(&sopts.searchType, "type", "t", "", "Search type: comprehensive, quick, detailed, creative")
	cmd.Flags().StringSliceVarP(&sopts.modalities, "modality", "m", nil, "Modality to search (repeatable): text, image, audio, video, code")
	cmd.Flags().StringSliceVar(&sopts.filters, "filter", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().StringVarP(&sopts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&sopts.principal, "principal", query.AnonymousPrincipal, "Principal the search is recorded for")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts *rootOptions, text string, sopts searchOptions) error {
	if sopts.format != "text" && sopts.format != "json" {
		return errors.ValidationError(fmt.Sprintf("unknown format %q (use text or json)", sopts.format), nil)
	}
	filters, err := parseFilters(sopts.filters)
	if err != nil {
		return err
	}

	unlock, err := lockDataDir(opts.cfg, "stop 'hypersearch serve' and query its HTTP API instead")
	if err != nil {
		return err
	}
	defer unlock()

	a, err := buildApp(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.engine.Search(ctx, query.Request{
		Text:       text,
		Type:       sopts.searchType,
		Modalities: sopts.modalities,
		Filters:    filters,
		Principal:  sopts.principal,
	})
	if err != nil {
		return err
	}

	resp := server.NewSearchResponse(res)
	if sopts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printSearchResponse(cmd.OutOrStdout(), resp)
	return nil
}

// printSearchResponse renders resp for a terminal or a pipe.
func printSearchResponse(w io.Writer, resp server.SearchResponse) {
	out := output.New(w)
	out.Header(fmt.Sprintf("%d results for %q (%s, %.0fms)",
		resp.Total, resp.Query, resp.Type, resp.ProcessingTime*1000))

	rows := make([]output.Result, len(resp.Results))
	for i, r := range resp.Results {
		rows[i] = output.Result{
			Title:    r.Title,
			Content:  r.Content,
			Score:    r.CombinedScore,
			Modality: r.Modality,
			Source:   r.SourceID,
		}
	}
	out.Results(rows)

	if d := resp.Degraded; d != nil {
		out.Newline()
		for source, code := range d.Sources {
			out.Warningf("%s unavailable (%s)", source, code)
		}
		if d.Cache != "" {
			out.Warningf("cache bypassed (%s)", d.Cache)
		}
		if d.Session != "" {
			out.Warningf("search not recorded (%s)", d.Session)
		}
	}
}

// parseFilters turns key=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.ValidationError(fmt.Sprintf("filter %q is not key=value", pair), nil)
		}
		filters[key] = strings.TrimSpace(value)
	}
	return filters, nil
}
