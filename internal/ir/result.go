package ir

import "fmt"

// ErrorInfo is a serializable failure captured from a loader or handler.
type ErrorInfo struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error implements error so captured failures can be joined and wrapped.
func (e ErrorInfo) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e ErrorInfo) toObject() Object {
	obj := Object{"message": String(e.Message)}
	if e.Detail != "" {
		obj["detail"] = String(e.Detail)
	}
	if e.Code != "" {
		obj["code"] = String(e.Code)
	}
	return obj
}

// ErrorInfoFrom captures err. Codes are taken from errors that expose one.
func ErrorInfoFrom(err error) ErrorInfo {
	info := ErrorInfo{Message: err.Error()}
	if c, ok := err.(interface{ ErrorCode() string }); ok {
		info.Code = c.ErrorCode()
	}
	return info
}

// Result is the outcome of an asynchronous load: exactly one of a value or
// an ErrorInfo. The zero Result is Ok(Null).
type Result struct {
	value Value
	err   *ErrorInfo
}

// Ok wraps a loaded value.
func Ok(v Value) Result {
	if v == nil {
		v = Null{}
	}
	return Result{value: v}
}

// Fail wraps a captured failure.
func Fail(info ErrorInfo) Result {
	return Result{err: &info}
}

// IsOK reports whether the load succeeded.
func (r Result) IsOK() bool { return r.err == nil }

// Unpack returns the value, or nil and the failure.
func (r Result) Unpack() (Value, *ErrorInfo) {
	if r.err != nil {
		return nil, r.err
	}
	if r.value == nil {
		return Null{}, nil
	}
	return r.value, nil
}

// Requeue is a pending asynchronous operation the caller must execute and
// resubmit as an async-completion event carrying RequestID.
type Requeue struct {
	HookID    HookID `json:"hook_id"`
	RequestID string `json:"request_id"`
	DepKey    string `json:"dep_key"`
}

// Request is one cycle's input.
type Request struct {
	// Seq is the caller's logical clock for the instance.
	Seq        int64    `json:"seq"`
	Props      Object   `json:"props,omitempty"`
	PriorState Snapshot `json:"prior_state,omitempty"`
	Events     []Event  `json:"events,omitempty"`
}
