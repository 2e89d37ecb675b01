package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Keys of the data attached to validation errors.
const (
	DataKeyTxID     = "txid"
	DataKeyTxIndex  = "txIndex"
	DataKeyOutpoint = "outpoint"
	DataKeyHeight   = "height"
)

// ErrDataI is the payload carried by an Error next to its message.
type ErrDataI interface {
	EncodeErrorData() []byte
	Error() string
	GetData(key string) interface{}
	SetData(key string, value interface{})
}

// ErrData is a flat key/value payload, e.g. the transaction that made a
// block invalid.
type ErrData map[string]interface{}

// Error lists the entries sorted by key.
func (e *ErrData) Error() string {
	if e == nil || len(*e) == 0 {
		return ""
	}

	keys := make([]string, 0, len(*e))
	for k := range *e {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, (*e)[k])
	}

	return strings.Join(parts, " ")
}

func (e *ErrData) SetData(key string, value interface{}) {
	if e == nil {
		return
	}

	(*e)[key] = value
}

func (e *ErrData) GetData(key string) interface{} {
	if e == nil {
		return nil
	}

	return (*e)[key]
}

// EncodeErrorData returns the payload as JSON, or nil if it cannot be encoded.
func (e *ErrData) EncodeErrorData() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}

	return data
}

// GetErrorData decodes a payload written by EncodeErrorData. Numbers come
// back as float64.
func GetErrorData(dataBytes []byte) (ErrDataI, error) {
	errData := &ErrData{}

	if err := json.Unmarshal(dataBytes, errData); err != nil {
		return errData, err
	}

	return errData, nil
}

// DataOf returns the value stored under key in the first *Error of err's
// chain that has one.
func DataOf(err error, key string) interface{} {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if v := e.GetData(key); v != nil {
				return v
			}
		}

		err = errors.Unwrap(err)
	}

	return nil
}
