package manifest

import (
	"Portfolio_Pipeline/internal/models"
	"errors"
)

// ErrNotFound 表示清单尚不存在（例如第一次运行）。
var ErrNotFound = errors.New("清单文件不存在")

// Store 定义了清单的持久化操作。清单是站点生成器和孤儿清理工具共同的唯一数据源。
type Store interface {
	// Load 读取清单。清单不存在时返回的错误满足 errors.Is(err, ErrNotFound)。
	Load() (*models.Manifest, error)
	// Save 整体覆盖写入清单。
	Save(m *models.Manifest) error
	// Location 返回清单的存放位置，用于日志。
	Location() string
}
