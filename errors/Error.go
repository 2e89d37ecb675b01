package errors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Error is a coded error. The code decides the Kind and the reject reason
// reported to peers; the message is for operators.
type Error struct {
	code       ERR
	message    string
	wrappedErr error
	data       ErrDataI
}

type Interface interface {
	Error() string
	Is(target error) bool
	As(target interface{}) bool
	Unwrap() error

	Code() ERR
	Message() string
	WrappedErr() error
	Data() ErrDataI
}

// Error formats as "CODE (n): message: wrapped [key=value ...]".
func (e *Error) Error() string {
	// predefined errors may be nil when wrapped
	if e == nil {
		return "<nil>"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (%d): %s", e.code.String(), e.code, e.message)

	if e.wrappedErr != nil {
		sb.WriteString(": ")
		sb.WriteString(e.wrappedErr.Error())
	}

	if e.data != nil {
		if data := e.data.Error(); data != "" {
			sb.WriteString(" [")
			sb.WriteString(data)
			sb.WriteString("]")
		}
	}

	return sb.String()
}

// Is matches on the error code anywhere in the chain of coded errors. A
// target that is not an *Error matches by message.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	targetError, ok := target.(*Error)
	if !ok {
		return strings.Contains(e.Error(), target.Error())
	}

	for current := e; current != nil; {
		if current.code == targetError.code {
			return true
		}

		next, ok := current.wrappedErr.(*Error)
		if !ok {
			return false
		}

		current = next
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if data, ok := e.data.(error); ok && errors.As(data, target) {
		return true
	}

	if e.wrappedErr == nil {
		return false
	}

	// a typed nil pointer would panic inside errors.As
	if v := reflect.ValueOf(e.wrappedErr); v.Kind() == reflect.Ptr && v.IsNil() {
		return false
	}

	return errors.As(e.wrappedErr, target)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

func (e *Error) Code() ERR {
	if e == nil {
		return ERR_UNKNOWN
	}

	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}

	return e.message
}

func (e *Error) WrappedErr() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

func (e *Error) Data() ErrDataI {
	if e == nil {
		return nil
	}

	return e.data
}

func (e *Error) SetData(key string, value interface{}) {
	if e.data == nil {
		e.data = &ErrData{}
	}

	e.data.SetData(key, value)
}

// WithData sets key and returns e, for use at construction:
//
//	errors.New(errors.ERR_TX_INVALID, "...").WithData(errors.DataKeyTxID, txID)
func (e *Error) WithData(key string, value interface{}) *Error {
	e.SetData(key, value)
	return e
}

func (e *Error) GetData(key string) interface{} {
	if e == nil || e.data == nil {
		return nil
	}

	return e.data.GetData(key)
}

// Kind returns the category of the error code, see KindOf.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}

	return e.code.Kind()
}

// New creates an Error. A trailing error in params is wrapped, the other
// params format message. An unknown code keeps the wrapped error but
// replaces the message with "invalid error code".
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr error

	if len(params) > 0 {
		if err, ok := params[len(params)-1].(error); ok {
			wErr = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	if _, ok := ERR_name[int32(code)]; !ok {
		message = "invalid error code"
	}

	return &Error{
		code:       code,
		message:    message,
		wrappedErr: wErr,
	}
}

// Join returns nil when every err is nil. Otherwise the messages of the
// non-nil errors are joined into one plain error.
func Join(errs ...error) error {
	var messages []string

	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}

	if len(messages) == 0 {
		return nil
	}

	return errors.New(strings.Join(messages, ", "))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsData looks for target in the data payloads of err's chain.
func AsData(err error, target interface{}) bool {
	castedErr, ok := err.(*Error)
	if !ok {
		return false
	}

	if data, ok := castedErr.data.(error); ok && errors.As(data, target) {
		return true
	}

	if castedErr.wrappedErr != nil {
		return AsData(castedErr.wrappedErr, target)
	}

	return false
}

func As(err error, target any) bool {
	if castedErr, ok := err.(*Error); ok && castedErr.As(target) {
		return true
	}

	return errors.As(err, target)
}
