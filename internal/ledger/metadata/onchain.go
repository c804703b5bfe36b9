package metadata

import (
	"fmt"

	dErrors "certledger/pkg/domain-errors"
)

// Shape identifies which on-chain metadata layout an asset was minted with.
type Shape string

const (
	ShapeV1     Shape = "v1"
	ShapeLegacy Shape = "legacy"
)

// V1 is the nested layout written by Build: display fields at the top level,
// credential fields under "attributes".
type V1 struct {
	Name        string
	Image       ChunkedString
	MediaType   string
	Description ChunkedString
	Attributes  map[string]ChunkedString
}

// Legacy is the flat layout used by earlier issuance tooling, where credential
// fields sit beside the display fields under their own key names.
type Legacy struct {
	Name           string
	Image          ChunkedString
	Description    ChunkedString
	CertificateID  string
	Student        string
	StudentID      string
	Course         string
	University     string
	GraduationDate string
	IssuedAt       string
	Hash           string
}

// Legacy flat keys.
const (
	legacyCertificateID  = "certificateId"
	legacyStudent        = "student"
	legacyStudentID      = "studentId"
	legacyCourse         = "course"
	legacyUniversity     = "university"
	legacyGraduationDate = "graduation_date"
	legacyIssuedAt       = "issued_at"
	legacyHash           = "hash"
)

// OnChain is a tagged union over the supported on-chain shapes.
// Exactly one of V1 or Legacy is set, according to Shape.
type OnChain struct {
	Shape  Shape
	V1     *V1
	Legacy *Legacy
}

// ParseOnChain classifies a decoded per-asset metadata object. An
// "attributes" map marks the V1 shape. Credential values are validated
// segment by segment; the display fields (name, image, description) are
// decoded leniently so that a malformed display value never hides the
// credential fields beside it.
func ParseOnChain(raw map[string]any) (OnChain, error) {
	if len(raw) == 0 {
		return OnChain{}, dErrors.New(dErrors.CodeEncoding, "asset carries no metadata")
	}

	name := Join(displayFromAny(raw["name"]))
	image := displayFromAny(raw["image"])
	description := displayFromAny(raw["description"])

	if attrsRaw, ok := raw["attributes"].(map[string]any); ok {
		attrs := make(map[string]ChunkedString, len(attrsRaw))
		for k, v := range attrsRaw {
			c, err := chunkedFromAny(v)
			if err != nil {
				return OnChain{}, dErrors.Wrap(err, dErrors.CodeEncoding, fmt.Sprintf("decode attribute %q", k))
			}
			attrs[k] = c
		}
		mediaType, _ := raw["mediaType"].(string)
		return OnChain{Shape: ShapeV1, V1: &V1{
			Name:        name,
			Image:       image,
			MediaType:   mediaType,
			Description: description,
			Attributes:  attrs,
		}}, nil
	}

	legacy := &Legacy{Name: name, Image: image, Description: description}
	fields := []struct {
		key string
		dst *string
	}{
		{legacyCertificateID, &legacy.CertificateID},
		{legacyStudent, &legacy.Student},
		{legacyStudentID, &legacy.StudentID},
		{legacyCourse, &legacy.Course},
		{legacyUniversity, &legacy.University},
		{legacyGraduationDate, &legacy.GraduationDate},
		{legacyIssuedAt, &legacy.IssuedAt},
		{legacyHash, &legacy.Hash},
	}
	for _, f := range fields {
		v, err := joinedField(raw, f.key)
		if err != nil {
			return OnChain{}, err
		}
		*f.dst = v
	}
	return OnChain{Shape: ShapeLegacy, Legacy: legacy}, nil
}

// Normalize produces the canonical credential view regardless of shape.
func (o OnChain) Normalize() Credential {
	switch {
	case o.V1 != nil:
		attr := func(k string) string { return Join(o.V1.Attributes[k]) }
		return Credential{
			Code:           attr(AttrCredentialCode),
			SubjectName:    attr(AttrSubjectName),
			SubjectNumber:  attr(AttrSubjectNumber),
			Program:        attr(AttrProgram),
			Degree:         attr(AttrDegree),
			Institution:    attr(AttrInstitution),
			InstitutionID:  attr(AttrInstitutionID),
			GraduationDate: attr(AttrGraduationDate),
			IssueDate:      attr(AttrIssueDate),
			DocumentHash:   attr(AttrDocumentHash),
			Image:          Join(o.V1.Image),
			MediaType:      o.V1.MediaType,
			Description:    Join(o.V1.Description),
		}
	case o.Legacy != nil:
		return Credential{
			Code:           o.Legacy.CertificateID,
			SubjectName:    o.Legacy.Student,
			SubjectNumber:  o.Legacy.StudentID,
			Program:        o.Legacy.Course,
			Institution:    o.Legacy.University,
			GraduationDate: o.Legacy.GraduationDate,
			IssueDate:      o.Legacy.IssuedAt,
			DocumentHash:   o.Legacy.Hash,
			Image:          Join(o.Legacy.Image),
			Description:    Join(o.Legacy.Description),
		}
	default:
		return Credential{}
	}
}

// DisplayName returns the on-chain token name.
func (o OnChain) DisplayName() string {
	switch {
	case o.V1 != nil:
		return o.V1.Name
	case o.Legacy != nil:
		return o.Legacy.Name
	default:
		return ""
	}
}

func joinedField(raw map[string]any, key string) (string, error) {
	c, err := chunkedFromAny(raw[key])
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, fmt.Sprintf("decode %q", key))
	}
	return Join(c), nil
}

// displayFromAny keeps whatever strings a display field carries, without the
// segment limits. Non-string values decode as empty.
func displayFromAny(v any) ChunkedString {
	switch t := v.(type) {
	case string:
		return ChunkedString{t}
	case []string:
		if len(t) == 0 {
			break
		}
		return append(ChunkedString(nil), t...)
	case []any:
		out := make(ChunkedString, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return ChunkedString{""}
}
