package docstore

import (
	"errors"

	"github.com/any-hub/docs-hub/internal/backup"
	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/store"
)

// 以下错误可直接配合 errors.Is 使用，调用方无需引入底层包。
var (
	ErrInvalidURL     = docid.ErrInvalidURL
	ErrNotFound       = store.ErrNotFound
	ErrWriteFailed    = store.ErrWriteFailed
	ErrReadFailed     = store.ErrReadFailed
	ErrCorrupt        = store.ErrCorrupt
	ErrBackupNotFound = backup.ErrNotFound
	ErrBackupFailed   = backup.ErrFailed
	ErrRestoreFailed  = backup.ErrRestoreFailed

	// ErrAlreadyDestroyed 表示 Store 已经 Destroy，所有后续调用都会返回该错误。
	ErrAlreadyDestroyed = errors.New("docs store already destroyed")
	// ErrInvalidMetadata 表示调用方传入的元数据覆盖项不合法（例如未知分类）。
	ErrInvalidMetadata = errors.New("invalid document metadata")
)
