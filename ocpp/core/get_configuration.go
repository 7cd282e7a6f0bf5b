package core

const GetConfigurationFeatureName = "GetConfiguration"

// ConfigurationKey describes one configuration entry reported by a charge
// point in a GetConfiguration response.
type ConfigurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

func (r GetConfigurationRequest) GetFeatureName() string {
	return GetConfigurationFeatureName
}

func (c GetConfigurationResponse) GetFeatureName() string {
	return GetConfigurationFeatureName
}

func NewGetConfigurationRequest(key []string) *GetConfigurationRequest {
	return &GetConfigurationRequest{Key: key}
}
