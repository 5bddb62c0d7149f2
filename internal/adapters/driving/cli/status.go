package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutorstack/docproc/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show a document's processing state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// documentStatus is the JSON shape of the status output.
type documentStatus struct {
	ID          uuid.UUID               `json:"id"`
	Filename    string                  `json:"filename"`
	Status      domain.ProcessingStatus `json:"status"`
	TotalChunks int                     `json:"total_chunks"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   *time.Time              `json:"processing_started_at,omitempty"`
	CompletedAt *time.Time              `json:"processing_completed_at,omitempty"`
	DurationSec float64                 `json:"processing_duration_seconds,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureServices(ctx); err != nil {
		return err
	}

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	status := documentStatus{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Status:      doc.Status,
		TotalChunks: doc.TotalChunks,
		Error:       doc.ProcessingError,
		StartedAt:   doc.ProcessingStartedAt,
		CompletedAt: doc.ProcessingCompletedAt,
		DurationSec: doc.ProcessingDuration().Seconds(),
	}

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%s  %s\n", doc.Filename, doc.Status)
	cmd.Printf("  chunks: %d\n", doc.TotalChunks)
	if doc.ProcessingError != "" {
		cmd.Printf("  error:  %s\n", doc.ProcessingError)
	}
	if d := doc.ProcessingDuration(); d > 0 {
		cmd.Printf("  took:   %s\n", d.Round(time.Millisecond))
	}
	return nil
}
