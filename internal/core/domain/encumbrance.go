package domain

import "time"

type EncumbranceType string

const (
	EncMortgage      EncumbranceType = "mortgage"
	EncDeedOfTrust   EncumbranceType = "deed_of_trust"
	EncTaxLien       EncumbranceType = "tax_lien"
	EncMechanicsLien EncumbranceType = "mechanics_lien"
	EncJudgmentLien  EncumbranceType = "judgment_lien"
	EncHOALien       EncumbranceType = "hoa_lien"
	EncEasement      EncumbranceType = "easement"
	EncRestriction   EncumbranceType = "restriction"
	EncLisPendens    EncumbranceType = "lis_pendens"
	EncOther         EncumbranceType = "other"
)

type EncumbranceStatus string

const (
	EncActive    EncumbranceStatus = "active"
	EncReleased  EncumbranceStatus = "released"
	EncSatisfied EncumbranceStatus = "satisfied"
	EncDisputed  EncumbranceStatus = "disputed"
	EncUnknown   EncumbranceStatus = "unknown"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type Encumbrance struct {
	ID                 string            `json:"id"`
	SearchID           string            `json:"search_id"`
	DocumentID         string            `json:"document_id,omitempty"`
	Type               EncumbranceType   `json:"type"`
	Status             EncumbranceStatus `json:"status"`
	HolderName         string            `json:"holder_name,omitempty"`
	OriginalAmount     string            `json:"original_amount,omitempty"`
	CurrentAmount      string            `json:"current_amount,omitempty"`
	RecordedDate       *time.Time        `json:"recorded_date,omitempty"`
	ReleasedDate       *time.Time        `json:"released_date,omitempty"`
	RecordingReference string            `json:"recording_reference,omitempty"`
	Description        string            `json:"description,omitempty"`
	RiskLevel          RiskLevel         `json:"risk_level"`
	RequiresAction     bool              `json:"requires_action"`
	ActionDescription  string            `json:"action_description,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CanTransition enforces one-directional status movement: active may be
// released, satisfied, or disputed; only disputed may revert to active.
func (s EncumbranceStatus) CanTransition(next EncumbranceStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case EncActive:
		return next == EncReleased || next == EncSatisfied || next == EncDisputed
	case EncDisputed:
		return next == EncActive || next == EncReleased || next == EncSatisfied
	case EncUnknown:
		return true
	}
	return false
}
