package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"recargas/internal/core"
	"recargas/internal/export"
	"recargas/internal/services"
)

var (
	exportUser   string
	exportOutput string
	exportS3     bool
)

var exportCmd = &cobra.Command{
	Use:       "export csv|json|pdf",
	Short:     "Export a user's recharges or report",
	Long:      `Writes the recharge history (csv), the KPI report (json) or a printable summary (pdf) to a file, stdout or S3.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"csv", "json", "pdf"},
	RunE:      runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportUser, "user", "u", "", "user whose data is exported")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout for csv/json, a generated name for pdf)")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "upload to EXPORT_S3_BUCKET instead of writing locally")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format := args[0]

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	u, err := lookupUser(ctx, st.Store, exportUser)
	if err != nil {
		return err
	}
	svc := services.NewRechargeService(st.Store, nil, nil)

	var buf bytes.Buffer
	switch format {
	case "csv":
		recs, err := svc.AllRecharges(ctx, u.ID, core.RechargeFilter{})
		if err != nil {
			return err
		}
		err = export.WriteCSV(&buf, recs)
		if err != nil {
			return err
		}
	case "json":
		rep, err := svc.Report(ctx, u.ID)
		if err != nil {
			return err
		}
		if err := export.WriteJSON(&buf, rep); err != nil {
			return err
		}
	case "pdf":
		rep, err := svc.Report(ctx, u.ID)
		if err != nil {
			return err
		}
		recs, err := svc.AllRecharges(ctx, u.ID, core.RechargeFilter{})
		if err != nil {
			return err
		}
		err = export.WritePDF(&buf, export.PDFInput{
			Title:     "Recargas de " + u.DisplayName(),
			Generated: time.Now(),
			Report:    rep,
			Recharges: recs,
			Format:    formatter(),
		})
		if err != nil {
			return err
		}
	}

	name := exportName(format, u.Username)
	if exportS3 {
		up, err := export.NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSProfile, cfg.AWSRegion)
		if err != nil {
			return err
		}
		size := buf.Len()
		loc, err := up.Upload(ctx, name, export.ContentType(format), &buf)
		if err != nil {
			return err
		}
		out.Success("Uploaded %s (%s)", loc, humanize.Bytes(uint64(size)))
		return nil
	}

	if exportOutput == "" && format == "pdf" {
		exportOutput = name
	}
	if exportOutput == "" || exportOutput == "-" {
		_, err := buf.WriteTo(os.Stdout)
		return err
	}
	if err := os.WriteFile(exportOutput, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", exportOutput, err)
	}
	out.Success("Wrote %s (%s)", exportOutput, humanize.Bytes(uint64(buf.Len())))
	return nil
}

// exportName is the file or object name of an export.
func exportName(format, username string) string {
	if format == "csv" {
		return strings.TrimSuffix(export.Filename(false), ".csv") + "_" + username + ".csv"
	}
	return fmt.Sprintf("recharge_report_%s_%s.%s", username, time.Now().Format("20060102"), format)
}
