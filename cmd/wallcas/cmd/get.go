package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <address>",
	Short: "Print the content stored under an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	res, err := s.Lookup(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%s: content unavailable", args[0])
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Body)
	return nil
}
