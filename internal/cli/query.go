package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"smartindex/config"
	"smartindex/internal/domain"
)

var (
	queryText      string
	queryTopK      int
	queryThreshold float64
	queryJSON      bool
	queryContent   bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed documents",
	Long: `Search for the documents most similar to a natural-language query.
Only results whose similarity is strictly above the threshold are shown.

Examples:
  smartindex query -q "holiday schedule"
  smartindex query -q "invoice from march" --top-k 10 --threshold 0.3 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results, must be positive (default from config)")
	queryCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", 0, "minimum similarity in [-1, 1] (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryContent, "content", false, "print the content preview of each result")
	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	sess, err := openSession(ctx, GetRootDir(), cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.checkReadable(); err != nil {
		return err
	}

	topK, threshold := searchParams(cmd.Flags(), cfg.Retrieve)
	results, err := sess.retriever.Search(ctx, queryText, topK, threshold)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			return fmt.Errorf("no index found. Run 'smartindex index' first")
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("%d. %s\n", i+1, r.Source)
		fmt.Printf("   %s\n", r.Explanation)
		if c, ok := r.Metadata[domain.MetaCluster]; ok {
			fmt.Printf("   Topic group: #%s\n", c)
		}
		if queryContent {
			fmt.Println(indent(r.Content, "   | "))
		}
		fmt.Println()
	}
	return nil
}

// searchParams takes k and threshold from the flags when given, otherwise
// from config. Explicit values are passed through unchecked so Search can
// reject them.
func searchParams(flags *pflag.FlagSet, rc config.RetrieveConfig) (int, float64) {
	topK := rc.TopK
	if flags.Changed("top-k") {
		topK = queryTopK
	}
	threshold := rc.Threshold
	if flags.Changed("threshold") {
		threshold = queryThreshold
	}
	return topK, threshold
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
