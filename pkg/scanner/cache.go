package scanner

import (
	"Portfolio_Pipeline/config"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Decision 是缓存对一个目标文件的判定结果。
type Decision int

const (
	Fresh Decision = iota
	Missing
	Stale
	Forced
)

func (d Decision) String() string {
	switch d {
	case Missing:
		return "missing"
	case Stale:
		return "stale"
	case Forced:
		return "forced"
	default:
		return "fresh"
	}
}

// NeedsGeneration 表示目标文件需要重新生成。
func (d Decision) NeedsGeneration() bool {
	return d != Fresh
}

// VariantCache 判断生成文件能否复用。
//   - existence: 目标存在即复用
//   - freshness: 目标存在且修改时间不早于原图才复用
type VariantCache struct {
	policy string
	force  bool
}

func NewVariantCache(policy string, force bool) *VariantCache {
	return &VariantCache{policy: policy, force: force}
}

// Decide 对单个目标文件给出判定。目标路径被目录占用或无法 stat 时返回错误。
func (c *VariantCache) Decide(target string, sourceModTime time.Time) (Decision, error) {
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, nil
		}
		return Fresh, fmt.Errorf("无法检查生成文件 %s: %w", target, err)
	}
	if info.IsDir() {
		return Fresh, fmt.Errorf("生成文件路径 %s 被目录占用", target)
	}
	if c.force {
		return Forced, nil
	}
	if c.policy == config.CachePolicyFreshness && info.ModTime().Before(sourceModTime) {
		return Stale, nil
	}
	return Fresh, nil
}
