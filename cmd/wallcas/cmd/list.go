package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored entries",
	Long:  "List all durable entries, oldest first.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	entries, err := s.Entries(context.Background())
	if err != nil && len(entries) == 0 {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%d\n", e.Address, e.StoredAt.Format(time.RFC3339), len(e.Body))
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "(no entries)")
	}

	return err
}
