package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"certledger/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <credential-code|asset-id>",
	Short: "Verify a credential against the record store and the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	client := newClient()

	var res verify.Result
	// Failed verifications still carry a result body.
	_, err := client.getJSON(cmd.Context(), "/api/v1/verify?q="+url.QueryEscape(args[0]), &res,
		http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout)
	if err != nil {
		return err
	}

	if structured() {
		if err := printOutput(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else if err := printTable(cmd.OutOrStdout(), []string{"Field", "Value"}, verifyRows(res)); err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("credential is not valid")
	}
	return nil
}

func verifyRows(res verify.Result) [][]string {
	rows := [][]string{
		{"Valid", strconv.FormatBool(res.Valid)},
		{"Source", string(res.Source)},
	}
	if d := res.Document; d != nil {
		rows = append(rows,
			[]string{"Code", orDash(d.Code)},
			[]string{"Status", orDash(string(d.Status))},
			[]string{"Subject", orDash(d.SubjectName)},
			[]string{"Program", orDash(d.Program)},
			[]string{"Institution", orDash(d.Institution)},
			[]string{"Asset ID", orDash(truncate(d.AssetID, 72))},
		)
	}
	if b := res.Blockchain; b != nil {
		minted := "-"
		if b.MintedAt != nil {
			minted = b.MintedAt.UTC().Format("2006-01-02 15:04:05Z")
		}
		rows = append(rows,
			[]string{"On Ledger", strconv.FormatBool(b.Verified)},
			[]string{"Tx Hash", orDash(b.TxHash)},
			[]string{"Minted At", minted},
		)
	}
	if c := res.Conflict; c != nil {
		for _, r := range c.Reasons {
			rows = append(rows, []string{"Conflict", string(r)})
		}
	}
	if res.Error != "" {
		rows = append(rows, []string{"Error", res.Error})
	}
	return rows
}
