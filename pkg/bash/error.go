package bash

import (
	"errors"
	"fmt"

	"bashkit/internal/executor"
)

// 错误类型，用 errors.Is 判断
var (
	ErrSyntax             = errors.New("BashSyntaxError")
	ErrFeatureUnsupported = errors.New("BashFeatureUnsupported")
	ErrNoHomeDirectory    = errors.New("NoHomeDirectory")
	ErrInternal           = errors.New("InternalError")
)

// BashError 执行中止时返回的错误，Out 保存已经尝试过的命令
type BashError struct {
	Kind error
	Out  *BashOut
	Err  error
}

// Error 实现 error 接口
func (e *BashError) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Out != nil {
		msg += "\n" + e.Out.FmtAttemptedCommands()
	}
	return msg
}

// Unwrap 同时暴露错误类型和原始错误
func (e *BashError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newBashError 把执行器错误映射为公开的错误类型
func newBashError(err error, out *BashOut) *BashError {
	kind := ErrInternal
	if k, ok := executor.KindOf(err); ok {
		switch k {
		case executor.ErrorKindSyntax:
			kind = ErrSyntax
		case executor.ErrorKindUnsupported:
			kind = ErrFeatureUnsupported
		case executor.ErrorKindNoHomeDir:
			kind = ErrNoHomeDirectory
		}
	}
	return &BashError{Kind: kind, Out: out, Err: err}
}
