package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"certledger/internal/ledger/assetname"
	"certledger/internal/ledger/metadata"
	"certledger/internal/ledger/policy"
	"certledger/internal/ledger/tx"
	"certledger/internal/signer"
)

var (
	namePrefix string
	nameBucket time.Duration
	nameAt     string

	policyKeyHash string
	policySeed    string
	policyMainnet bool

	metadataPolicy string
	metadataAsset  string
)

var assetNameCmd = &cobra.Command{
	Use:   "asset-name <subject-id>",
	Short: "Derive the ledger asset name for a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetName,
}

var policyIDCmd = &cobra.Command{
	Use:   "policy-id",
	Short: "Derive the minting policy id for a signing key",
	RunE:  runPolicyID,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <value>",
	Short: "Split a value into 64-byte metadata segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <credential.json>",
	Short: "Render the label-721 metadata document for a credential",
	Long: `metadata reads credential fields as JSON (use - for stdin) and prints the
document that would be attached to the mint transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runMetadata,
}

func init() {
	assetNameCmd.Flags().StringVar(&namePrefix, "prefix", "D", "Asset name prefix")
	assetNameCmd.Flags().DurationVar(&nameBucket, "bucket", 10*time.Minute, "Time bucket width")
	assetNameCmd.Flags().StringVar(&nameAt, "at", "", "Mint time in RFC 3339 (default: now)")

	policyIDCmd.Flags().StringVar(&policyKeyHash, "key-hash", "", "Hex-encoded 28-byte payment key hash")
	policyIDCmd.Flags().StringVar(&policySeed, "seed", "", "Hex-encoded 32-byte signing seed")
	policyIDCmd.Flags().BoolVar(&policyMainnet, "mainnet", false, "Render the signer address for mainnet")
	policyIDCmd.MarkFlagsMutuallyExclusive("key-hash", "seed")
	policyIDCmd.MarkFlagsOneRequired("key-hash", "seed")

	metadataCmd.Flags().StringVar(&metadataPolicy, "policy-id", "", "Policy id (required)")
	metadataCmd.Flags().StringVar(&metadataAsset, "asset-name", "", "Asset name (required)")
	_ = metadataCmd.MarkFlagRequired("policy-id")
	_ = metadataCmd.MarkFlagRequired("asset-name")
}

type assetNameOutput struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Hex     string `json:"hex"`
	Bytes   int    `json:"bytes"`
}

func runAssetName(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if nameAt != "" {
		t, err := time.Parse(time.RFC3339, nameAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = t
	}

	d := assetname.NewDeriver(assetname.WithPrefix(namePrefix), assetname.WithBucket(nameBucket))
	name, err := d.Derive(args[0], at)
	if err != nil {
		return err
	}

	out := assetNameOutput{Subject: args[0], Name: name.String(), Hex: name.Hex(), Bytes: len(name)}
	if structured() {
		return printOutput(cmd.OutOrStdout(), out)
	}
	return printTable(cmd.OutOrStdout(), []string{"Name", "Hex", "Bytes"},
		[][]string{{out.Name, out.Hex, strconv.Itoa(out.Bytes)}})
}

type policyOutput struct {
	PolicyID  string `json:"policyId"`
	KeyHash   string `json:"keyHash"`
	ScriptHex string `json:"scriptCbor"`
	Address   string `json:"address,omitempty"`
}

func runPolicyID(cmd *cobra.Command, _ []string) error {
	var (
		keyHash tx.KeyHash
		err     error
	)
	if policySeed != "" {
		seed, decodeErr := hex.DecodeString(strings.TrimSpace(policySeed))
		if decodeErr != nil || len(seed) != ed25519.SeedSize {
			return fmt.Errorf("--seed must be %d hex-encoded bytes", ed25519.SeedSize)
		}
		pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		keyHash = tx.HashKey(pub)
	} else if keyHash, err = tx.ParseKeyHash(policyKeyHash); err != nil {
		return err
	}

	p, err := policy.NewManager().Derive(keyHash)
	if err != nil {
		return err
	}
	script, err := p.Script.CBOR()
	if err != nil {
		return err
	}
	addr, err := signer.EnterpriseAddress(keyHash, policyMainnet)
	if err != nil {
		return err
	}

	out := policyOutput{PolicyID: p.ID, KeyHash: keyHash.Hex(), ScriptHex: hex.EncodeToString(script), Address: addr}
	if structured() {
		return printOutput(cmd.OutOrStdout(), out)
	}
	return printTable(cmd.OutOrStdout(), []string{"Policy ID", "Key Hash", "Address"},
		[][]string{{out.PolicyID, out.KeyHash, out.Address}})
}

func runChunk(cmd *cobra.Command, args []string) error {
	segments := metadata.Chunk(args[0])
	if structured() {
		return printOutput(cmd.OutOrStdout(), []string(segments))
	}
	rows := make([][]string, 0, len(segments))
	for i, s := range segments {
		rows = append(rows, []string{strconv.Itoa(i), strconv.Itoa(len(s)), s})
	}
	return printTable(cmd.OutOrStdout(), []string{"#", "Bytes", "Segment"}, rows)
}

func runMetadata(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = readAll(cmd)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}

	var c metadata.Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("parse credential: %w", err)
	}
	doc, err := metadata.Build(metadataPolicy, metadataAsset, c)
	if err != nil {
		return err
	}
	// The document is nested; a table says nothing useful about it.
	if outputFmt == "yaml" {
		return printYAML(cmd.OutOrStdout(), doc.AuxiliaryData())
	}
	return printJSON(cmd.OutOrStdout(), doc.AuxiliaryData())
}

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}
