package http

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one rejected field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"rsiTolerance"`
	Message string                 `json:"message,omitempty" example:"rsiTolerance is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ValidationErrors wraps field errors for callers outside a request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "validation failed"
	case 1:
		return v[0].Message
	}
	return v[0].Message + " (and more)"
}
