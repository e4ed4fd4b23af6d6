package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docrag-go/internal/bootstrap"
	"docrag-go/internal/service"
	"docrag-go/pkg/token"
)

var (
	searchThreshold float64
	searchCount     int
	searchContext   bool
	searchJSON      bool

	tokenName string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find the chunks most similar to a query",
	Long: `Embeds the query and ranks stored chunks by cosine similarity.
With --context the matches are printed as one block ready to paste into a prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runSearch),
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for --user",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity in [0,1]; the configured default when unset")
	searchCmd.Flags().IntVarP(&searchCount, "count", "n", 0, "maximum number of results; the configured default when unset")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print a prompt-ready context block")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")

	tokenCmd.Flags().StringVar(&tokenName, "name", "", "username embedded in the token")

	rootCmd.AddCommand(searchCmd, tokenCmd)
}

func runSearch(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error {
	req := service.SearchRequest{Query: args[0], Count: searchCount, UserID: userID}
	if cmd.Flags().Changed("threshold") {
		if searchThreshold < 0 || searchThreshold > 1 {
			return fmt.Errorf("threshold must be between 0 and 1")
		}
		t := searchThreshold
		req.Threshold = &t
	}

	out := cmd.OutOrStdout()
	results, err := app.Search.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	switch {
	case searchContext:
		fmt.Fprintln(out, service.FormatContext(results))
	case searchJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case len(results) == 0:
		fmt.Fprintln(out, "No results found.")
	default:
		for i, r := range results {
			fmt.Fprintf(out, "[%d] %s #%d (%.2f)\n    %s\n",
				i+1, r.Metadata.FileName, r.Metadata.ChunkIndex, r.Similarity, snippet(r.Content, 160))
		}
	}
	return nil
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is not configured")
	}
	tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(userID, tokenName)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
