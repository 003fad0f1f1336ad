package models

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response.
// Code is the stable machine-readable error code from the dispatch error
// taxonomy; Message and Error describe the specific failure.
type MessageError struct {
	Code    string `json:",omitempty"`
	Message string
	Error   string
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
