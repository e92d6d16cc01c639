package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"recargas/internal/csvimport"
	"recargas/internal/services"
)

var (
	importUser   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Import recharges from a CSV file",
	Long: `Reads a recharge CSV (comma or semicolon separated, UTF-8 or Latin-1) and
stores every row for the given user. Any invalid row rejects the whole file.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importUser, "user", "u", "", "owner of the imported recharges")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the file without saving")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	res := csvimport.ParseReader(f)
	if !res.OK() {
		for _, msg := range res.Errors {
			out.Error("%s", msg)
		}
		return fmt.Errorf("%s rejected with %d error(s)", args[0], len(res.Errors))
	}
	out.Info("%s valid rows (delimiter %q)", humanize.Comma(int64(len(res.Records))), res.Delimiter)
	if importDryRun {
		return nil
	}

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	u, err := lookupUser(ctx, st.Store, importUser)
	if err != nil {
		return err
	}

	svc := services.NewRechargeService(st.Store, nil, nil)
	result := svc.Import(ctx, u.ID, res.Records)
	for _, w := range result.Warnings {
		out.Warning("%s", w)
	}
	if result.Created == 0 {
		return fmt.Errorf("no recharges imported")
	}
	out.Success("Imported %s of %s recharges for %s (batch %s)",
		humanize.Comma(int64(result.Created)), humanize.Comma(int64(result.Rows)), u.Username, result.BatchID)
	return nil
}
