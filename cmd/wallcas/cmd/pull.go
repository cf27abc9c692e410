package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/wallcas"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "Pull from remote registry",
	Long:  "Pull content from an OCI registry into the local store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	ref := args[0]

	s, err := openStore(wallcas.WithRemote(ref))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(os.Stderr, "Pulling %s...\n", ref)

	res, err := s.Pull(context.Background())
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. Root: %s (%d received, %d new, %d rejected)\n",
		res.Root, res.Received, res.Imported, res.Rejected)
	return nil
}
