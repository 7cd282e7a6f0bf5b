package ocpp

// Request is an OCPP-J request payload, sent inside a Call frame.
type Request interface {
	// GetFeatureName returns the unique name of the feature this request belongs to.
	GetFeatureName() string
}

// Response is an OCPP-J response payload, sent inside a CallResult frame.
type Response interface {
	GetFeatureName() string
}
