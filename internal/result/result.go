// Package result carries the outcome of an operation whose failure is
// recorded rather than propagated.
package result

// Result holds either a value or an error.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Of builds a Result from a (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Ptr returns a pointer to the value, or nil on failure.
func (r Result[T]) Ptr() *T {
	if r.Err != nil {
		return nil
	}
	v := r.Value
	return &v
}
