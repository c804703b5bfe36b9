package metadata

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "certledger/pkg/domain-errors"
)

const testPolicyID = "1e349c9bdea19fd6c147626a5260bc44b71635f398b67c59881df209"

type DocumentSuite struct {
	suite.Suite
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

func sampleCredential() Credential {
	return Credential{
		Code:           "UNI-2024-STU2024001",
		SubjectName:    "María José Fernández",
		SubjectNumber:  "STU2024001",
		Program:        "Computer Science",
		Degree:         "Bachelor of Science",
		Institution:    "Universidad Nacional",
		InstitutionID:  "UNI",
		GraduationDate: "2024-06-30",
		IssueDate:      "2024-07-15",
		DocumentHash:   strings.Repeat("ab", 32),
		Image:          "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		Description:    strings.Repeat("Awarded with honours. ", 9) + "xx", // 200 bytes
	}
}

// A 200-byte description must split into at least four segments and decode exactly.
func (s *DocumentSuite) TestScenarioLongDescription() {
	c := sampleCredential()
	s.Require().Len(c.Description, 200)

	doc, err := Build(testPolicyID, "DSTU20240011A2B3C4D", c)
	s.Require().NoError(err)

	asset, ok := doc.Asset(testPolicyID, "DSTU20240011A2B3C4D")
	s.Require().True(ok)
	s.GreaterOrEqual(len(asset.Description), 4)

	raw := s.roundTripAsset(doc, "DSTU20240011A2B3C4D")
	parsed, err := ParseOnChain(raw)
	s.Require().NoError(err)
	s.Equal(ShapeV1, parsed.Shape)
	s.Equal(c, parsedWithMediaTypeCleared(parsed.Normalize(), c))
}

func (s *DocumentSuite) TestDocumentLayout() {
	doc, err := Build(testPolicyID, "ASSET1", sampleCredential())
	s.Require().NoError(err)

	data, err := json.Marshal(doc)
	s.Require().NoError(err)

	var tree map[string]any
	s.Require().NoError(json.Unmarshal(data, &tree))
	s.Equal(Version, tree["version"])
	policy, ok := tree[testPolicyID].(map[string]any)
	s.Require().True(ok)
	asset, ok := policy["ASSET1"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Computer Science - María José Fernández", asset["name"])
	s.Equal(DefaultMediaType, asset["mediaType"])
	s.Contains(asset, "attributes")
}

func (s *DocumentSuite) TestNameIsCappedAtRuneBoundary() {
	c := sampleCredential()
	c.Program = strings.Repeat("Ingeniería ", 8)
	name, truncated, err := CapName(c.DisplayName())
	s.Require().NoError(err)
	s.True(truncated)
	s.LessOrEqual(len(name), MaxSegmentBytes)
	s.True(isWholeRunes(name))

	doc, err := Build(testPolicyID, "A", c)
	s.Require().NoError(err)
	asset, _ := doc.Asset(testPolicyID, "A")
	s.Equal(name, asset.Name)
}

func (s *DocumentSuite) TestBuildValidation() {
	_, err := Build("", "A", sampleCredential())
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	c := sampleCredential()
	c.Image = "ipfs://not-a-cid"
	_, err = Build(testPolicyID, "A", c)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	c.Image = "ftp://example.com/x.png"
	_, err = Build(testPolicyID, "A", c)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DocumentSuite) TestLegacyShapeNormalizes() {
	raw := map[string]any{
		"name":            "Diploma",
		"image":           []any{"ipfs://QmYwAPJzv5CZsnA625s3Xf2nem", "tYgPpHdWEz79ojWnPbdG"},
		"certificateId":   "UNI-2019-ABC123",
		"student":         "Ana Pérez",
		"studentId":       "STU2019007",
		"course":          "Law",
		"university":      "Universidad Nacional",
		"graduation_date": "2019-12-01",
		"hash":            strings.Repeat("cd", 32),
	}
	parsed, err := ParseOnChain(raw)
	s.Require().NoError(err)
	s.Equal(ShapeLegacy, parsed.Shape)
	s.Nil(parsed.V1)

	c := parsed.Normalize()
	s.Equal("UNI-2019-ABC123", c.Code)
	s.Equal("Ana Pérez", c.SubjectName)
	s.Equal("Law", c.Program)
	s.Equal("ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", c.Image)
	s.Equal("Diploma", parsed.DisplayName())
}

func (s *DocumentSuite) TestParseRejectsOversizeSegments() {
	raw := map[string]any{
		"name":       "x",
		"attributes": map[string]any{AttrSubjectName: strings.Repeat("n", 80)},
	}
	_, err := ParseOnChain(raw)
	s.True(dErrors.HasReason(err, dErrors.CodeEncoding, dErrors.ReasonSegmentTooLong))

	_, err = ParseOnChain(nil)
	s.True(dErrors.HasCode(err, dErrors.CodeEncoding))
}

func (s *DocumentSuite) TestParseToleratesOversizeDisplayFields() {
	longImage := "ipfs://" + strings.Repeat("b", 70)
	longDescription := strings.Repeat("d", 90)

	s.Run("v1 keeps attributes", func() {
		raw := map[string]any{
			"name":        strings.Repeat("n", 70),
			"image":       longImage,
			"description": []any{longDescription, 7},
			"attributes": map[string]any{
				AttrCredentialCode: "UNI-2024-ABC123",
				AttrDocumentHash:   strings.Repeat("0f", 32),
			},
		}
		parsed, err := ParseOnChain(raw)
		s.Require().NoError(err)
		c := parsed.Normalize()
		s.Equal("UNI-2024-ABC123", c.Code)
		s.Equal(strings.Repeat("0f", 32), c.DocumentHash)
		s.Equal(longImage, c.Image)
		s.Equal(longDescription, c.Description)
	})

	s.Run("legacy keeps certificate id", func() {
		raw := map[string]any{
			"name":          "Diploma",
			"image":         longImage,
			"certificateId": "UNI-2024-ABC123",
		}
		parsed, err := ParseOnChain(raw)
		s.Require().NoError(err)
		s.Equal(ShapeLegacy, parsed.Shape)
		s.Equal("UNI-2024-ABC123", parsed.Normalize().Code)
	})

	s.Run("credential keys stay strict", func() {
		raw := map[string]any{
			"image":         longImage,
			"certificateId": strings.Repeat("C", 70),
		}
		_, err := ParseOnChain(raw)
		s.True(dErrors.HasReason(err, dErrors.CodeEncoding, dErrors.ReasonSegmentTooLong))
	})
}

func (s *DocumentSuite) TestDocumentHashHelpers() {
	cidStr, err := DocumentCID([]byte("diploma.pdf contents"))
	s.Require().NoError(err)
	s.NoError(ValidateImageURI("ipfs://" + cidStr + "/front.png"))
	s.NoError(ValidateDocumentHash(cidStr))
	s.NoError(ValidateDocumentHash(strings.Repeat("0f", 32)))
	s.Error(ValidateDocumentHash("nope"))

	digest, ok := digestOf(cidStr)
	s.Require().True(ok)
	s.True(SameDocumentHash(cidStr, strings.ToUpper(digest)))
	s.False(SameDocumentHash(cidStr, strings.Repeat("0f", 32)))
}

// roundTripAsset serializes the document as JSON and returns the per-asset object
// the way an indexer would hand it back.
func (s *DocumentSuite) roundTripAsset(doc Document, assetName string) map[string]any {
	data, err := json.Marshal(doc)
	s.Require().NoError(err)
	var tree map[string]any
	s.Require().NoError(json.Unmarshal(data, &tree))
	policy := tree[testPolicyID].(map[string]any)
	return policy[assetName].(map[string]any)
}

func parsedWithMediaTypeCleared(got, want Credential) Credential {
	if want.MediaType == "" && got.MediaType == DefaultMediaType {
		got.MediaType = ""
	}
	return got
}
