package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect or administer the whole gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered identities in registration order",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gallery size and engine health",
	Args:  cobra.NoArgs,
	RunE:  runGalleryStats,
}

var galleryPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every identity",
	Long: `Delete every identity from the gallery and its storage.
This cannot be undone; --yes is required.`,
	Args: cobra.NoArgs,
	RunE: runGalleryPurge,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryStatsCmd)
	galleryCmd.AddCommand(galleryPurgeCmd)

	galleryPurgeCmd.Flags().Bool("yes", false, "Confirm deleting every identity")
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	identities := a.engine.List()
	if len(identities) == 0 {
		fmt.Println("Gallery is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tEMBEDDINGS\tREGISTERED\tLAST REGISTERED")
	for _, s := range identities {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.IdentityKey, s.EmbeddingCount,
			s.RegisteredAt.Format(time.RFC3339), s.LastRegisteredAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runGalleryStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.engine.Health()
	fmt.Printf("Status:      %s\n", h.Status)
	fmt.Printf("Identities:  %d\n", h.GallerySize)
	fmt.Printf("Embeddings:  %d\n", h.EmbeddingCount)
	fmt.Printf("Model:       %s (%d dimensions)\n", h.ModelVersion, h.Dim)
	fmt.Printf("Storage:     %s\n", a.cfg.Storage.Backend)
	fmt.Printf("Threshold:   %.3f (%s, %s)\n", a.cfg.Engine.MatchThreshold, a.cfg.Engine.Metric, a.cfg.Engine.Strategy)
	return nil
}

func runGalleryPurge(cmd *cobra.Command, args []string) error {
	if !mustFlag(cmd.Flags().GetBool, "yes") {
		return errors.New("refusing to purge without --yes")
	}

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.engine.Purge(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d identit(ies)\n", n)
	return nil
}
