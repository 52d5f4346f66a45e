package auth

import "fmt"

// Result is the tagged outcome handed to transport layers.
type Result[T any] struct {
	OK      bool   `json:"ok"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message"`
	Payload T      `json:"payload,omitempty"`
}

// Outcome folds an operation's return values into a Result. The cause of an
// error never reaches Message.
func Outcome[T any](payload T, err error, okMessage string) Result[T] {
	if err == nil {
		return Result[T]{OK: true, Message: okMessage, Payload: payload}
	}
	e := AsError(err)
	return Result[T]{OK: false, Code: e.Code, Message: e.Message}
}

// Do runs fn and converts its outcome, including a panic, into a Result.
func Do[T any](okMessage string, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = Outcome(zero, Unknown(fmt.Errorf("panic: %v", r)), okMessage)
		}
	}()
	payload, err := fn()
	return Outcome(payload, err, okMessage)
}
