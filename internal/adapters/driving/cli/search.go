package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutorstack/docproc/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [document-id] [query]",
	Short: "Find the document chunks most relevant to a query",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of chunks")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if retrieval == nil {
		return errors.New("search requires OPENAI_API_KEY to embed the query")
	}

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	chunks, err := retrieval.TopChunks(ctx, documentID, args[1], searchLimit)
	if err != nil {
		if errors.Is(err, domain.ErrNoRelevantContext) {
			cmd.Println("No relevant chunks found.")
			return nil
		}
		return err
	}

	if searchJSON {
		data, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for i, chunk := range chunks {
		cmd.Printf("  [%d] chunk %d (%.2f)\n", i+1, chunk.Index, chunk.Score)
		cmd.Printf("      %s\n\n", chunk.Text)
	}
	return nil
}
