package scanner

import (
	"Portfolio_Pipeline/config"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrRootLevelFile 表示文件直接位于源目录根部，且配置要求跳过这类文件。
	ErrRootLevelFile = errors.New("文件位于源目录根部，没有分类目录")
	// ErrAmbiguousSegment 表示某一级路径包含 ID 分隔符，拼接出的 ID 将无法保证唯一。
	ErrAmbiguousSegment = errors.New("路径中包含 ID 分隔符")
	// ErrInvalidPath 表示相对路径无法解析为照片路径。
	ErrInvalidPath = errors.New("无效的相对路径")
)

// Identity 是从相对路径推导出的照片身份。
type Identity struct {
	ID       string
	Category string
	// Album 为 nil 表示照片直接位于分类目录下；否则是中间各级目录以 / 拼接的结果。
	Album *string
	// RelStem 是去掉扩展名的相对路径（以 / 分隔），生成文件沿用这个结构。
	RelStem string
	// FileName 是原始文件名（含扩展名）。
	FileName string
}

// Classifier 根据文件在源目录中的位置推导 ID、分类和相册。它是纯函数，没有副作用。
type Classifier struct {
	separator         string
	rootFiles         string
	uncategorizedName string
}

func NewClassifier(cfg config.PipelineConfig) *Classifier {
	return &Classifier{
		separator:         cfg.IDSeparator,
		rootFiles:         cfg.RootFiles,
		uncategorizedName: cfg.UncategorizedName,
	}
}

// Classify 解析相对路径。路径分隔符可以是 / 或 \。
func (c *Classifier) Classify(relPath string) (Identity, error) {
	segments := splitSegments(relPath)
	if len(segments) == 0 {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	for _, seg := range segments {
		if seg == ".." {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
		}
		if strings.Contains(seg, c.separator) {
			return Identity{}, fmt.Errorf("%w: %q 包含 %q", ErrAmbiguousSegment, seg, c.separator)
		}
	}

	fileName := segments[len(segments)-1]
	stem := strings.TrimSuffix(fileName, path.Ext(fileName))
	if stem == "" {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	parts := append(segments[:len(segments)-1:len(segments)-1], stem)

	id := Identity{
		ID:       strings.Join(parts, c.separator),
		RelStem:  strings.Join(parts, "/"),
		FileName: fileName,
	}

	switch {
	case len(segments) == 1:
		if c.rootFiles != config.RootFilesUncategorized {
			return Identity{}, fmt.Errorf("%w: %q", ErrRootLevelFile, relPath)
		}
		id.Category = c.uncategorizedName
	case len(segments) == 2:
		id.Category = segments[0]
	default:
		id.Category = segments[0]
		album := strings.Join(segments[1:len(segments)-1], "/")
		id.Album = &album
	}
	return id, nil
}

func splitSegments(relPath string) []string {
	normalized := strings.ReplaceAll(relPath, `\`, "/")
	var segments []string
	for _, seg := range strings.Split(normalized, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}
