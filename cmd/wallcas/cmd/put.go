package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/wallcas"
)

var putCmd = &cobra.Command{
	Use:   "put [body]",
	Short: "Store content and print its address",
	Long:  "Store a post body and print the address to record on the ledger. Reads stdin when no body is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	var body string
	if len(args) == 1 {
		body = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = strings.TrimSuffix(string(data), "\n")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	addr, err := s.Put(context.Background(), body)
	if err != nil && !errors.Is(err, wallcas.ErrDurabilityDegraded) {
		return err
	}

	// the address is valid even when the durable write failed
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return err
}
