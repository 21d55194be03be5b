package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 业务错误类型
type ErrorKind string

const (
	KindPermissionDenied       ErrorKind = "permission_denied"
	KindValidation             ErrorKind = "validation_error"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindQuotaExceeded          ErrorKind = "quota_exceeded"
	KindCapacityExceeded       ErrorKind = "capacity_exceeded"
	KindGenderMismatch         ErrorKind = "gender_mismatch"
	KindNotFound               ErrorKind = "not_found"
)

// Error 工作流错误（返回给调用方，不做自动重试）
// Op: 触发错误的操作名（如 "decideGatePass"）
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

// Is matches any *Error carrying the same kind, so callers can compare with the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrQuotaExceeded          = &Error{Kind: KindQuotaExceeded}
	ErrCapacityExceeded       = &Error{Kind: KindCapacityExceeded}
	ErrGenderMismatch         = &Error{Kind: KindGenderMismatch}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

// Errorf 构造带操作名的业务错误
func Errorf(kind ErrorKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound 构造实体不存在错误
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

// KindOf returns the kind of a workflow error, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithOp 为错误补充操作名（已有 Op 的错误保持不变）
func WithOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		return &Error{Kind: e.Kind, Op: op, Msg: e.Msg}
	}
	return err
}
