// Package dberr file: internal/core/dberr/errors.go
//
// 定义跨后端统一的错误分类。调用方只会看到这里的几种错误，
// 永远不会直接拿到驱动层的原生错误类型。
package dberr

import (
	"errors"
	"fmt"
)

// Kind 是错误的大类。
type Kind int

const (
	KindDatabase Kind = iota // 兜底的通用数据库错误
	KindConnection
	KindQuery
	KindPermission
	KindIntegrity
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindQuery:
		return "QueryError"
	case KindPermission:
		return "PermissionError"
	case KindIntegrity:
		return "IntegrityError"
	case KindTimeout:
		return "TimeoutError"
	default:
		return "DatabaseError"
	}
}

// 哨兵错误，配合 errors.Is 判断大类
var (
	ErrDatabase   = errors.New("database error")
	ErrConnection = errors.New("connection error")
	ErrQuery      = errors.New("query error")
	ErrPermission = errors.New("permission error")
	ErrIntegrity  = errors.New("integrity error")
	ErrTimeout    = errors.New("timeout error")
)

var sentinels = map[Kind]error{
	KindDatabase:   ErrDatabase,
	KindConnection: ErrConnection,
	KindQuery:      ErrQuery,
	KindPermission: ErrPermission,
	KindIntegrity:  ErrIntegrity,
	KindTimeout:    ErrTimeout,
}

// Error 是对外暴露的唯一错误类型。
// Backend 记录产生错误的后端类型，Cause 保留未翻译的原生错误便于排查。
type Error struct {
	Kind    Kind
	Message string
	Backend string
	Cause   error
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Backend, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回原生错误
func (e *Error) Unwrap() error { return e.Cause }

// Is 让 errors.Is(err, dberr.ErrQuery) 之类的判断成立。
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// OriginalCause 返回传入分类器的原始错误对象。
func (e *Error) OriginalCause() error { return e.Cause }

func newError(kind Kind, backend string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Backend: backend, Cause: cause}
}

// Query 构造 QueryError。
func Query(backend, format string, args ...any) *Error {
	return newError(KindQuery, backend, nil, format, args...)
}

// Permission 构造 PermissionError。
func Permission(backend, format string, args ...any) *Error {
	return newError(KindPermission, backend, nil, format, args...)
}

// Connection 构造 ConnectionError，cause 可为 nil。
func Connection(backend string, cause error, format string, args ...any) *Error {
	return newError(KindConnection, backend, cause, format, args...)
}

// Timeout 构造 TimeoutError。
func Timeout(backend string, cause error, format string, args ...any) *Error {
	return newError(KindTimeout, backend, cause, format, args...)
}

// Integrity 构造 IntegrityError。
func Integrity(backend string, cause error, format string, args ...any) *Error {
	return newError(KindIntegrity, backend, cause, format, args...)
}

// Database 构造通用 DatabaseError。
func Database(backend string, cause error, format string, args ...any) *Error {
	return newError(KindDatabase, backend, cause, format, args...)
}

// As 在错误链中查找 *Error。
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf 返回错误链中第一个 *Error 的分类；没有则视为通用错误。
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return KindDatabase
}

func IsQuery(err error) bool      { return errors.Is(err, ErrQuery) }
func IsPermission(err error) bool { return errors.Is(err, ErrPermission) }
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }
func IsIntegrity(err error) bool  { return errors.Is(err, ErrIntegrity) }
func IsTimeout(err error) bool    { return errors.Is(err, ErrTimeout) }
