package layout

import (
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/pkg/thumbnailer"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// SizeClass 区分缩略图和全尺寸图。
type SizeClass string

const (
	Thumb SizeClass = "thumb"
	Full  SizeClass = "full"
)

type sizeDirs struct {
	root   string
	prefix string
}

// Layout 描述生成文件在磁盘上和站点上的位置。
// 生成目录镜像源目录的相对路径结构，每种编码共用同一个文件名主干，只有扩展名不同。
type Layout struct {
	dirs      map[SizeClass]sizeDirs
	encodings []thumbnailer.Format
	ascii     bool
}

func New(cfg config.PipelineConfig) *Layout {
	encodings := []thumbnailer.Format{thumbnailer.JPEG}
	for _, enc := range cfg.Encodings {
		if f := thumbnailer.Format(enc); f != thumbnailer.JPEG {
			encodings = append(encodings, f)
		}
	}
	return &Layout{
		dirs: map[SizeClass]sizeDirs{
			Thumb: {root: filepath.Clean(cfg.ThumbPath), prefix: strings.TrimSuffix(cfg.ThumbWebPrefix, "/")},
			Full:  {root: filepath.Clean(cfg.FullPath), prefix: strings.TrimSuffix(cfg.FullWebPrefix, "/")},
		},
		encodings: encodings,
		ascii:     cfg.ASCIIAssetPaths,
	}
}

// Primary 是清单中记录的编码。
func (l *Layout) Primary() thumbnailer.Format {
	return thumbnailer.JPEG
}

// Encodings 返回每个尺寸需要生成的全部编码，主编码在最前。
func (l *Layout) Encodings() []thumbnailer.Format {
	return l.encodings
}

// Root 返回某个尺寸的生成目录。
func (l *Layout) Root(size SizeClass) string {
	return l.dirs[size].root
}

// Roots 返回所有生成目录（去重）。
func (l *Layout) Roots() []string {
	roots := []string{l.dirs[Thumb].root}
	if full := l.dirs[Full].root; full != roots[0] {
		roots = append(roots, full)
	}
	return roots
}

// AssetStem 把照片的相对路径主干（不含扩展名，以 / 分隔）转换为生成文件使用的主干。
// 开启 asciiAssetPaths 时逐段音译为 ASCII。
func (l *Layout) AssetStem(relStem string) string {
	if !l.ascii {
		return relStem
	}
	segments := strings.Split(relStem, "/")
	for i, seg := range segments {
		ascii := strings.TrimSpace(unidecode.Unidecode(seg))
		ascii = strings.Join(strings.Fields(ascii), " ")
		if ascii != "" {
			segments[i] = ascii
		}
	}
	return strings.Join(segments, "/")
}

// FilePath 返回某个变体在磁盘上的路径。
func (l *Layout) FilePath(size SizeClass, assetStem string, f thumbnailer.Format) string {
	return filepath.Join(l.dirs[size].root, filepath.FromSlash(assetStem)+f.Ext())
}

// WebPath 返回主编码变体在站点上的路径。
func (l *Layout) WebPath(size SizeClass, assetStem string) string {
	return path.Join(l.dirs[size].prefix, assetStem+l.Primary().Ext())
}

// Resolve 把清单中的 web 路径映射回磁盘路径。不属于任何生成目录的路径返回 false。
func (l *Layout) Resolve(webPath string) (string, bool) {
	candidates := []sizeDirs{l.dirs[Thumb], l.dirs[Full]}
	// 前缀互相包含时优先匹配更长的前缀
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].prefix) > len(candidates[j].prefix)
	})
	for _, d := range candidates {
		rest, ok := strings.CutPrefix(webPath, d.prefix+"/")
		if !ok || rest == "" {
			continue
		}
		cleaned := path.Clean(rest)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
			return "", false
		}
		return filepath.Join(d.root, filepath.FromSlash(cleaned)), true
	}
	return "", false
}

// Twins 返回与 JPEG 文件同名、但使用其他已配置编码的兄弟文件路径。
// 清单每个尺寸只记录一个编码的路径，其余编码的文件靠这条规则被认领。
func (l *Layout) Twins(fsPath string) []string {
	ext := strings.ToLower(filepath.Ext(fsPath))
	if ext != ".jpg" && ext != ".jpeg" {
		return nil
	}
	base := strings.TrimSuffix(fsPath, filepath.Ext(fsPath))
	var twins []string
	for _, f := range l.encodings {
		if f == thumbnailer.JPEG {
			continue
		}
		twins = append(twins, base+f.Ext())
	}
	return twins
}
