package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/face"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect or delete a single identity",
}

var identityStatusCmd = &cobra.Command{
	Use:   "status <identity>",
	Short: "Show whether an identity is registered",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityStatus,
}

var identityDeleteCmd = &cobra.Command{
	Use:   "delete <identity>",
	Short: "Delete an identity and all of its embeddings",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityDelete,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityStatusCmd)
	identityCmd.AddCommand(identityDeleteCmd)
}

func runIdentityStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.engine.Status(args[0])
	if err != nil {
		return err
	}
	if !status.Registered {
		fmt.Printf("%s: not registered\n", status.IdentityKey)
		return nil
	}
	fmt.Printf("%s: registered\n", status.IdentityKey)
	fmt.Printf("  Embeddings:      %d\n", status.EmbeddingCount)
	fmt.Printf("  Registered:      %s\n", status.RegisteredAt.Format(time.RFC3339))
	fmt.Printf("  Last registered: %s\n", status.LastRegisteredAt.Format(time.RFC3339))
	return nil
}

func runIdentityDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Delete(context.Background(), args[0]); err != nil {
		if errors.Is(err, face.ErrNotFound) {
			fmt.Printf("%s: not found\n", args[0])
			return nil
		}
		return err
	}
	fmt.Printf("%s: deleted\n", args[0])
	return nil
}
