package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示文档不存在。
	ErrNotFound = errors.New("document not found")
	// ErrWriteFailed 表示元数据或正文写入失败。
	ErrWriteFailed = errors.New("document write failed")
	// ErrReadFailed 表示读取磁盘记录失败。
	ErrReadFailed = errors.New("document read failed")
	// ErrCorrupt 表示元数据无法解析或正文与校验和不符。
	ErrCorrupt = errors.New("document record corrupt")
)

// OpError 描述失败的操作、涉及的路径以及底层原因。
// errors.Is 同时匹配 Kind 与 Err。
type OpError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func writeErr(op, path string, err error) error {
	return &OpError{Kind: ErrWriteFailed, Op: op, Path: path, Err: err}
}

func readErr(op, path string, err error) error {
	return &OpError{Kind: ErrReadFailed, Op: op, Path: path, Err: err}
}

func corruptErr(op, path string, err error) error {
	return &OpError{Kind: ErrCorrupt, Op: op, Path: path, Err: err}
}
