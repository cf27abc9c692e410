package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aweris/wallcas"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <address>...",
	Short: "Resolve a batch of addresses",
	Long:  "Resolve many addresses at once. Unavailable content is reported as missing; malformed addresses are reported and skipped.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	results, perr := s.ResolveStrings(context.Background(), args)
	if perr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", perr)
	}

	printResolutions(cmd.OutOrStdout(), results)
	return nil
}

func printResolutions(out io.Writer, results map[wallcas.Address]wallcas.Resolution) {
	addrs := make([]wallcas.Address, 0, len(results))
	for a := range results {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	found := 0
	for _, addr := range addrs {
		res := results[addr]
		if !res.Found {
			fmt.Fprintf(out, "%s\t(missing)\n", addr)
			continue
		}
		found++
		fmt.Fprintf(out, "%s\t%s\n", addr, strconv.Quote(res.Body))
	}
	fmt.Fprintf(os.Stderr, "%d/%d resolved\n", found, len(results))
}
