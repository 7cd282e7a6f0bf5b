package core

const ResetFeatureName = "Reset"

type ResetType string

const (
	ResetTypeHard ResetType = "Hard"
	ResetTypeSoft ResetType = "Soft"
)

type ResetRequest struct {
	Type ResetType `json:"type"`
}

func NewResetRequest(resetType ResetType) *ResetRequest {
	return &ResetRequest{Type: resetType}
}

func (r ResetRequest) GetFeatureName() string {
	return ResetFeatureName
}
