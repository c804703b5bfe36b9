package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"certledger/internal/credential/handler"
	"certledger/internal/credential/models"
)

var (
	listStatus string
	listLimit  int
	listOffset int

	revokeReason string
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Inspect and manage credential records (requires --admin-token)",
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credential records",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsList,
}

var credentialsGetCmd = &cobra.Command{
	Use:   "get <code>",
	Short: "Show one credential record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsGet,
}

var credentialsIssueCmd = &cobra.Command{
	Use:   "issue <code>",
	Short: "Mint the credential token and wait for confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsIssue,
}

var credentialsRevokeCmd = &cobra.Command{
	Use:   "revoke <code>",
	Short: "Revoke a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsRevoke,
}

func init() {
	credentialsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	credentialsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Page size")
	credentialsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Page offset")

	credentialsRevokeCmd.Flags().StringVar(&revokeReason, "reason", "", "Revocation reason (required)")
	_ = credentialsRevokeCmd.MarkFlagRequired("reason")

	credentialsCmd.AddCommand(credentialsListCmd, credentialsGetCmd, credentialsIssueCmd, credentialsRevokeCmd)
}

func runCredentialsList(cmd *cobra.Command, _ []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(listLimit))
	q.Set("offset", strconv.Itoa(listOffset))
	if listStatus != "" {
		q.Set("status", listStatus)
	}

	var page handler.ListResponse
	if _, err := newClient().getJSON(cmd.Context(), "/api/v1/credentials?"+q.Encode(), &page); err != nil {
		return err
	}
	if structured() {
		return printOutput(cmd.OutOrStdout(), page)
	}
	rows := make([][]string, 0, len(page.Credentials))
	for _, c := range page.Credentials {
		rows = append(rows, credentialRow(c))
	}
	return printTable(cmd.OutOrStdout(), credentialHeaders, rows)
}

func runCredentialsGet(cmd *cobra.Command, args []string) error {
	var c models.Credential
	if _, err := newClient().getJSON(cmd.Context(), "/api/v1/credentials/"+url.PathEscape(args[0]), &c); err != nil {
		return err
	}
	return printCredential(cmd, &c)
}

func runCredentialsIssue(cmd *cobra.Command, args []string) error {
	var resp handler.IssueResponse
	_, err := newClient().postJSON(cmd.Context(), "/api/v1/credentials/"+url.PathEscape(args[0])+"/issue", struct{}{}, &resp,
		http.StatusBadRequest, http.StatusConflict, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout)
	if err != nil {
		return err
	}
	if structured() {
		if err := printOutput(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else if resp.Credential != nil {
		if err := printTable(cmd.OutOrStdout(), credentialHeaders, [][]string{credentialRow(resp.Credential)}); err != nil {
			return err
		}
	}
	if resp.Error != "" {
		return fmt.Errorf("issue %s: %s (%s)", resp.Code, resp.Error, resp.ErrorKind)
	}
	return nil
}

func runCredentialsRevoke(cmd *cobra.Command, args []string) error {
	var c models.Credential
	body := handler.RevokeRequest{Reason: revokeReason}
	if _, err := newClient().postJSON(cmd.Context(), "/api/v1/credentials/"+url.PathEscape(args[0])+"/revoke", body, &c); err != nil {
		return err
	}
	return printCredential(cmd, &c)
}

var credentialHeaders = []string{"Code", "Status", "Mint", "Subject", "Asset ID"}

func credentialRow(c *models.Credential) []string {
	return []string{
		c.Code,
		string(c.Status),
		orDash(string(c.MintState)),
		orDash(truncate(c.Metadata.SubjectName, 32)),
		orDash(truncate(c.AssetID, 40)),
	}
}

func printCredential(cmd *cobra.Command, c *models.Credential) error {
	if structured() {
		return printOutput(cmd.OutOrStdout(), c)
	}
	return printTable(cmd.OutOrStdout(), credentialHeaders, [][]string{credentialRow(c)})
}
