package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Code classes. The thousands digit groups errors by how the gateway reacts:
// authentication errors reject the connection, validation and authorization
// errors drop the single event, dependency errors abort the operation.
const (
	CodeAuthentication = 10000
	CodeValidation     = 11000
	CodeAuthorization  = 12000
	CodeDependency     = 13000
)

var (
	ErrAuthentication = NewCodeError(CodeAuthentication, "authentication error")
	ErrTokenExpired   = NewCodeError(CodeAuthentication+1, "token expired")
	ErrValidation     = NewCodeError(CodeValidation, "validation error")
	ErrAuthorization  = NewCodeError(CodeAuthorization, "authorization error")
	ErrDependency     = NewCodeError(CodeDependency, "dependency error")
	ErrRecordExists   = NewCodeError(CodeValidation+1, "record already exists")
	ErrRecordNotFound = NewCodeError(CodeValidation+2, "record not found")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e CodeError) Wrap() error {
	return pkgerrors.WithStack(e)
}

func (e CodeError) WrapMsg(msg string, kv ...any) error {
	return pkgerrors.WithStack(e.WithDetail(toString(msg, kv)))
}

func (e CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

func (e CodeError) Is(err error) bool {
	var codeErr CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Code == e.Code
}

// CodeOf returns the CodeError carried by err, if any.
func CodeOf(err error) (CodeError, bool) {
	var codeErr CodeError
	ok := errors.As(err, &codeErr)
	return codeErr, ok
}

// class checks: a code belongs to a class when it falls inside its block.

func classOf(err error, class int) bool {
	ce, ok := CodeOf(err)
	if !ok {
		return false
	}
	return ce.Code >= class && ce.Code < class+1000
}

func IsAuthentication(err error) bool { return classOf(err, CodeAuthentication) }
func IsValidation(err error) bool     { return classOf(err, CodeValidation) }
func IsAuthorization(err error) bool  { return classOf(err, CodeAuthorization) }
func IsDependency(err error) bool     { return classOf(err, CodeDependency) }

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		sb.WriteString(" ")
		sb.WriteString(toStr(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(toStr(kv[i+1]))
		}
	}
	return sb.String()
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(v)
	}
}
