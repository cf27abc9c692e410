package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove content older than the retention period",
	Long:  "Remove entries stored longer ago than --retention. With --every, keep sweeping on that interval until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().Duration("retention", 0, "maximum age of kept content (default 720h)")
	sweepCmd.Flags().Duration("every", 0, "sweep repeatedly on this interval")
	viper.BindPFlag("retention", sweepCmd.Flags().Lookup("retention"))
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) (err error) {
	maxAge := viper.GetDuration("retention")
	every, _ := cmd.Flags().GetDuration("every")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if every > 0 {
		fmt.Fprintf(os.Stderr, "Sweeping every %s (retention %s)...\n", every, maxAge)
		if err := s.RunSweeper(ctx, every, maxAge); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	removed, err := s.Sweep(ctx, maxAge)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
	return nil
}
