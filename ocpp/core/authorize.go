package core

import "csms/types"

const AuthorizeFeatureName = "Authorize"

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo *types.IdTagInfo `json:"idTagInfo"`
}

func (req AuthorizeRequest) GetFeatureName() string {
	return AuthorizeFeatureName
}

func (res AuthorizeResponse) GetFeatureName() string {
	return AuthorizeFeatureName
}

func NewAuthorizeResponse(idTagInfo *types.IdTagInfo) *AuthorizeResponse {
	return &AuthorizeResponse{IdTagInfo: idTagInfo}
}
