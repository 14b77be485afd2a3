// Package models defines the core data structures for TimerPipe.
//
// This file defines the response envelope shared by every API endpoint.
package models

// APIStatus is the value of the envelope's status field.
type APIStatus string

const (
	// APIStatusOK marks a request that was carried out.
	APIStatusOK APIStatus = "ok"
	// APIStatusError marks a request that was rejected or failed.
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope every TimerPipe endpoint returns. A run-control
// call answers with the resulting run status as the result:
//
//	{"status":"ok","result":{"state":"running","timer_name":"Work","remaining_seconds":42.5}}
//
// while a failure carries a message and no result:
//
//	{"status":"error","message":"Counter not found"}
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"` // human-readable error or confirmation
	Result  interface{} `json:"result,omitempty"`  // entity, list of entities, or run status
}

// APIResponseBuilder assembles an APIResponse field by field. Handlers mostly
// go through the Success/Error helpers below.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder returns an empty builder.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the envelope status.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the envelope message.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the envelope result payload.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build returns the assembled APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success wraps a result payload in an ok envelope.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage wraps a result payload in an ok envelope with a
// confirmation message, used by delete endpoints whose result is empty.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error builds an error envelope carrying only the message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
