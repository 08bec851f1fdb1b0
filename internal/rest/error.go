package rest

// ErrorResponse is the JSON body of non-2xx API answers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
