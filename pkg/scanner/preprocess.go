package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrSourceMissing 表示源目录不存在或不是目录，整次运行必须中止。
var ErrSourceMissing = errors.New("源目录不存在")

// SourceImage 是源目录中的一张原图。
type SourceImage struct {
	// Path 是磁盘路径。
	Path string
	// RelPath 是相对于源目录、以 / 分隔的路径。
	RelPath string
	ModTime time.Time
}

// Enumerate 递归列出源目录下的所有图片，按相对路径排序。
// 隐藏文件和隐藏目录会被忽略；skipDirs 中的目录（通常是生成目录）不会被进入。
func Enumerate(root string, skipDirs ...string) ([]SourceImage, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, root)
		}
		return nil, fmt.Errorf("无法访问源目录 %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s 不是目录", ErrSourceMissing, root)
	}

	skip := make(map[string]struct{}, len(skipDirs))
	for _, d := range skipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var images []SourceImage
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				if _, ok := skip[abs]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() || !isImageExtension(p) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		images = append(images, SourceImage{
			Path:    p,
			RelPath: filepath.ToSlash(rel),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("遍历源目录失败: %w", err)
	}

	sort.Slice(images, func(i, j int) bool { return images[i].RelPath < images[j].RelPath })
	return images, nil
}

// Dedupe 去掉指向同一相对路径的重复条目，保留第一次出现的那个。
func Dedupe(images []SourceImage) []SourceImage {
	seen := make(map[string]struct{}, len(images))
	out := make([]SourceImage, 0, len(images))
	for _, img := range images {
		key := path.Clean(strings.ReplaceAll(img.RelPath, `\`, "/"))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, img)
	}
	return out
}

// isImageExtension 判断文件是否是可处理的原图
func isImageExtension(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}
