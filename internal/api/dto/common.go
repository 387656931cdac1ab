package dto

// Response is the envelope every endpoint returns. Data and Errors are
// mutually exclusive in practice but the shape stays stable either way.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func OK(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

func Invalid(errors []FieldError) Response {
	return Response{Success: false, Message: "Validation échouée.", Errors: errors}
}
