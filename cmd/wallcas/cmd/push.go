package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/wallcas"
)

var pushCmd = &cobra.Command{
	Use:   "push <ref> [tags...]",
	Short: "Push to remote registry",
	Long:  "Push all stored content to an OCI registry. Optionally push to additional tags.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
	ref := args[0]
	tags := args[1:]

	s, err := openStore(wallcas.WithRemote(ref))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(os.Stderr, "Pushing %s...\n", ref)

	if err := s.Push(context.Background(), tags...); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Done.")
	return nil
}
