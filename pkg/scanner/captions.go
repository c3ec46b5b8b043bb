package scanner

import (
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/manifest"
	"errors"
	"log/slog"
	"sort"
)

// CaptionMap 保存上一份清单中用户手写的说明文字，键为照片 ID。
// 在主循环开始前构建，之后只读。
type CaptionMap map[string]string

// LoadCaptions 从上一份清单中收集说明文字。
// 清单不存在或无法解析都不是致命错误，只会得到一个空映射。
func LoadCaptions(store manifest.Store, logger *slog.Logger) CaptionMap {
	captions := make(CaptionMap)
	prev, err := store.Load()
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			logger.Warn("没有找到上一份清单，不恢复说明文字", "path", store.Location())
		} else {
			logger.Warn("上一份清单无法读取，说明文字将不会被恢复", "path", store.Location(), "error", err)
		}
		return captions
	}
	for _, rec := range prev.Photos {
		if rec.Caption != "" {
			captions[rec.ID] = rec.Caption
		}
	}
	logger.Debug("已加载说明文字", "count", len(captions))
	return captions
}

// Apply 为记录附上说明文字，返回是否找到。
func (c CaptionMap) Apply(rec *models.PhotoRecord) bool {
	caption, ok := c[rec.ID]
	if !ok {
		return false
	}
	rec.Caption = caption
	return true
}

// Orphaned 返回那些 ID 已不在本次结果中的说明文字的 ID，按字典序排列。
func (c CaptionMap) Orphaned(ids map[string]struct{}) []string {
	var orphaned []string
	for id := range c {
		if _, ok := ids[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	sort.Strings(orphaned)
	return orphaned
}
