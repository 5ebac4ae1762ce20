package rpckit

import "fmt"

// Reserved JSON-RPC 2.0 codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a protocol-level RPC error that the caller maps to the wire error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func ParseError() *Error {
	return &Error{Code: CodeParseError, Message: "parse error"}
}

func InvalidRequest() *Error {
	return &Error{Code: CodeInvalidRequest, Message: "invalid request"}
}

func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

func InvalidParams(detail string) *Error {
	if detail == "" {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	return &Error{Code: CodeInvalidParams, Message: "invalid params: " + detail}
}

func Internal(err error) *Error {
	if err == nil {
		return &Error{Code: CodeInternalError, Message: "internal error"}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
