package metadata

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	dErrors "certledger/pkg/domain-errors"
)

// Label is the transaction metadata label for non-fungible token metadata.
const Label uint64 = 721

// Version is the metadata convention version written by this service.
const Version = "1.0"

// DefaultMediaType is used when a credential image carries no explicit type.
const DefaultMediaType = "image/png"

// Attribute keys written under "attributes".
const (
	AttrCredentialCode = "credentialCode"
	AttrSubjectName    = "studentName"
	AttrSubjectNumber  = "studentNumber"
	AttrProgram        = "program"
	AttrDegree         = "degree"
	AttrInstitution    = "institution"
	AttrInstitutionID  = "institutionId"
	AttrGraduationDate = "graduationDate"
	AttrIssueDate      = "issueDate"
	AttrDocumentHash   = "documentHash"
)

// Credential is the canonical in-memory view of credential fields shared by
// issuance (encoding) and verification (decoding/normalizing).
type Credential struct {
	Code           string `json:"credentialCode,omitempty"`
	SubjectName    string `json:"studentName,omitempty"`
	SubjectNumber  string `json:"studentNumber,omitempty"`
	Program        string `json:"program,omitempty"`
	Degree         string `json:"degree,omitempty"`
	Institution    string `json:"institution,omitempty"`
	InstitutionID  string `json:"institutionId,omitempty"`
	GraduationDate string `json:"graduationDate,omitempty"`
	IssueDate      string `json:"issueDate,omitempty"`
	DocumentHash   string `json:"documentHash,omitempty"`
	Image          string `json:"image,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
	Description    string `json:"description,omitempty"`
}

// DisplayName is the human-readable token name before capping.
func (c Credential) DisplayName() string {
	switch {
	case c.Program != "" && c.SubjectName != "":
		return c.Program + " - " + c.SubjectName
	case c.Program != "":
		return c.Program
	default:
		return c.SubjectName
	}
}

func (c Credential) attributes() map[string]string {
	return map[string]string{
		AttrCredentialCode: c.Code,
		AttrSubjectName:    c.SubjectName,
		AttrSubjectNumber:  c.SubjectNumber,
		AttrProgram:        c.Program,
		AttrDegree:         c.Degree,
		AttrInstitution:    c.Institution,
		AttrInstitutionID:  c.InstitutionID,
		AttrGraduationDate: c.GraduationDate,
		AttrIssueDate:      c.IssueDate,
		AttrDocumentHash:   c.DocumentHash,
	}
}

// AssetMetadata is the per-asset object under policy ID and asset key.
type AssetMetadata struct {
	Name        string                   `json:"name" cbor:"name"`
	Image       ChunkedString            `json:"image" cbor:"image"`
	MediaType   string                   `json:"mediaType" cbor:"mediaType"`
	Description ChunkedString            `json:"description,omitempty" cbor:"description,omitempty"`
	Attributes  map[string]ChunkedString `json:"attributes" cbor:"attributes"`
}

// Document is the label-721 payload: policy ID -> asset key -> asset metadata, plus version.
type Document struct {
	Assets  map[string]map[string]AssetMetadata
	Version string
}

func (d Document) tree() map[string]any {
	out := make(map[string]any, len(d.Assets)+1)
	for policyID, assets := range d.Assets {
		out[policyID] = assets
	}
	out["version"] = d.Version
	return out
}

// MarshalJSON flattens Assets next to the version key.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.tree())
}

// MarshalCBOR flattens Assets next to the version key. Map keys are sorted
// so the auxiliary data hash is stable.
func (d Document) MarshalCBOR() ([]byte, error) {
	return canonicalCBOR.Marshal(d.tree())
}

var canonicalCBOR = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Asset returns the metadata for one asset, if present.
func (d Document) Asset(policyID, assetName string) (AssetMetadata, bool) {
	assets, ok := d.Assets[policyID]
	if !ok {
		return AssetMetadata{}, false
	}
	m, ok := assets[assetName]
	return m, ok
}

// AuxiliaryData wraps the document under its label, ready for the transaction.
func (d Document) AuxiliaryData() map[uint64]Document {
	return map[uint64]Document{Label: d}
}

// CapName truncates name at a rune boundary to fit MaxSegmentBytes and then
// checks the result explicitly. truncated reports whether bytes were dropped.
func CapName(name string) (capped string, truncated bool, err error) {
	if len(name) <= MaxSegmentBytes {
		return name, false, nil
	}
	cut := 0
	for cut < len(name) {
		_, w := utf8.DecodeRuneInString(name[cut:])
		if cut+w > MaxSegmentBytes {
			break
		}
		cut += w
	}
	capped = name[:cut]
	if len(capped) > MaxSegmentBytes {
		return "", true, dErrors.NewReason(dErrors.CodeEncoding, dErrors.ReasonNameTooLong,
			fmt.Sprintf("asset display name is %d bytes after truncation", len(capped)))
	}
	return capped, true, nil
}

// Build assembles the label-721 document for a single minted asset.
// Every variable-length field is chunked; the name is capped at 64 bytes.
func Build(policyID, assetName string, c Credential) (Document, error) {
	if policyID == "" || assetName == "" {
		return Document{}, dErrors.New(dErrors.CodeValidation, "policy id and asset name are required")
	}
	if c.Image != "" {
		if err := ValidateImageURI(c.Image); err != nil {
			return Document{}, err
		}
	}
	name, _, err := CapName(c.DisplayName())
	if err != nil {
		return Document{}, err
	}
	mediaType := c.MediaType
	if mediaType == "" {
		mediaType = DefaultMediaType
	}

	attrs := make(map[string]ChunkedString)
	for k, v := range c.attributes() {
		if v == "" {
			continue
		}
		attrs[k] = Chunk(v)
	}

	asset := AssetMetadata{
		Name:       name,
		Image:      Chunk(c.Image),
		MediaType:  mediaType,
		Attributes: attrs,
	}
	if c.Description != "" {
		asset.Description = Chunk(c.Description)
	}

	return Document{
		Assets:  map[string]map[string]AssetMetadata{policyID: {assetName: asset}},
		Version: Version,
	}, nil
}
