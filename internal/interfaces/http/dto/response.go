package dto

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// RetryAfterSeconds is set on quota denials.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response that echoes the request id
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	resp := NewErrorResponse(code, message)
	resp.Error.RequestID = requestID
	return resp
}

// NewRateLimitedResponse creates the body of a quota denial
func NewRateLimitedResponse(requestID string, retryAfterSeconds int) Response {
	resp := NewErrorResponseWithRequestID(ErrCodeRateLimited, MessageRateLimited, requestID)
	resp.Error.RetryAfterSeconds = retryAfterSeconds
	return resp
}

// FeatureUsageResponse is one feature's standing in the current window
type FeatureUsageResponse struct {
	Feature        string `json:"feature"`
	Limit          int    `json:"limit"`
	Used           int    `json:"used"`
	Remaining      int    `json:"remaining"`
	ResetInSeconds int    `json:"reset_in_seconds,omitempty"`
}

// UsageResponse lists usage for every gated feature
type UsageResponse struct {
	Tier          string                 `json:"tier"`
	WindowSeconds int                    `json:"window_seconds"`
	Features      []FeatureUsageResponse `json:"features"`
}

// InvokeFeatureRequest is the body of a feature invocation
type InvokeFeatureRequest struct {
	Input map[string]any `json:"input"`
}

// ActivityResponse describes a recorded feature invocation
type ActivityResponse struct {
	ID        string `json:"id"`
	Feature   string `json:"feature"`
	Result    string `json:"result,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// HealthResponse reports process and dependency health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
