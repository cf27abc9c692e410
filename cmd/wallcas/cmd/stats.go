package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	st, err := s.Stats(context.Background())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:  %s\n", st.Backend)
	fmt.Fprintf(out, "data dir: %s\n", st.DataDir)
	fmt.Fprintf(out, "entries:  %d\n", st.Entries)
	fmt.Fprintf(out, "bytes:    %d\n", st.Bytes)
	if st.Entries > 0 {
		fmt.Fprintf(out, "oldest:   %s\n", st.Oldest.Format(time.RFC3339))
		fmt.Fprintf(out, "newest:   %s\n", st.Newest.Format(time.RFC3339))
	}
	if st.RemoteRef != "" {
		fmt.Fprintf(out, "remote:   %s\n", st.RemoteRef)
	}
	return err
}
