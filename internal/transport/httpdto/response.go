package httpdto

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewPartialResponse carries data that is usable despite err, such as a
// conversation served from local state after a failed history fetch.
func NewPartialResponse[T any](data T, err string, code string) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
		Error:   err,
		Code:    code,
	}
}

// NewFailureResponse reports a failed operation together with its outcome.
func NewFailureResponse[T any](data T, err string, code string) Response[T] {
	return Response[T]{
		Success: false,
		Data:    data,
		Error:   err,
		Code:    code,
	}
}
