package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示没有匹配的快照。
	ErrNotFound = errors.New("backup not found")
	// ErrFailed 表示创建或清理快照时发生 I/O 错误。
	ErrFailed = errors.New("backup failed")
	// ErrRestoreFailed 表示把快照写回存储目录时发生 I/O 错误。
	ErrRestoreFailed = errors.New("restore failed")
)

// NotFoundError 携带请求的时间戳；空时间戳表示目录中没有任何快照。
type NotFoundError struct {
	Timestamp string
}

func (e *NotFoundError) Error() string {
	if e.Timestamp == "" {
		return "Backup not found: no backups available"
	}
	return "Backup not found: " + e.Timestamp
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// OpError 描述失败的快照操作及其底层原因。
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
