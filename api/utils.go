package api

const (
	ErrorMessage500 = "Something went wrong!"

	statusSuccess = "success"
	statusError   = "error"
)

// response is the JSON envelope of every HTTP reply.
type response[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func errorResponse(msg string) response[any] {
	return response[any]{Status: statusError, Message: msg}
}

func successResponse[T any](msg string, data T) response[T] {
	return response[T]{Status: statusSuccess, Message: msg, Data: data}
}
