package main

import (
	"github.com/spf13/cobra"

	"recargas/internal/console"
	"recargas/internal/services"
)

var reportUser string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the KPI report of a user",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportUser, "user", "u", "", "user to report on")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	u, err := lookupUser(ctx, st.Store, reportUser)
	if err != nil {
		return err
	}
	rep, err := services.NewRechargeService(st.Store, nil, nil).Report(ctx, u.ID)
	if err != nil {
		return err
	}
	if rep.KPIs.Recharges == 0 {
		out.Info("%s has no recharges yet", u.Username)
		return nil
	}
	if !rep.HasConfig {
		out.Warning("fuel comparison not configured: savings are not shown")
	}
	out.Println(console.Bold("Relatório de " + u.DisplayName()))
	out.Println(console.Report(rep, formatter()))
	return nil
}
