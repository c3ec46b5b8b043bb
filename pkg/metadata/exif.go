package metadata

import (
	"Portfolio_Pipeline/config"
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// displaySeparator 用于拼接展示字符串中的各个部分。
const displaySeparator = " · "

// ErrNoExif 表示文件里没有 EXIF 段，这不是解析错误。
var ErrNoExif = errors.New("没有 EXIF 数据")

var (
	jpegSOI    = []byte{0xFF, 0xD8}
	exifIntro  = []byte("Exif\x00\x00")
	tiffLE     = []byte("II*\x00")
	tiffBE     = []byte("MM\x00*")
	rawExifTag = []byte("Exif")
)

// Tags 是 EXIF 标签的扁平映射。
type Tags map[exif.FieldName]*tiff.Tag

type tagCollector Tags

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c[name] = tag
	return nil
}

// ReadTags 从原始文件字节中解析 EXIF，返回扁平的标签映射。
// 没有 EXIF 段时返回 ErrNoExif。
func ReadTags(data []byte) (tags Tags, err error) {
	if !hasExifSegment(data) {
		return nil, ErrNoExif
	}

	// goexif 遇到某些截断的数据会 panic，统一转换为错误
	defer func() {
		if r := recover(); r != nil {
			tags, err = nil, fmt.Errorf("解析 EXIF 时发生异常: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, err
	}
	collected := make(tagCollector)
	if err := x.Walk(collected); err != nil {
		return nil, err
	}
	return Tags(collected), nil
}

// hasExifSegment 只认 TIFF 文件、裸 EXIF 块和带 Exif 标记的 JPEG。
func hasExifSegment(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, tiffLE), bytes.HasPrefix(data, tiffBE), bytes.HasPrefix(data, rawExifTag):
		return true
	case bytes.HasPrefix(data, jpegSOI):
		return bytes.Contains(data, exifIntro)
	default:
		return false
	}
}

// Lines 返回按字段名排序的 "名称: 值" 列表，用于诊断输出。
func (t Tags) Lines() []string {
	lines := make([]string, 0, len(t))
	for name, tag := range t {
		lines = append(lines, fmt.Sprintf("%s: %s", name, tag))
	}
	sort.Strings(lines)
	return lines
}

// Fields 是展示字符串所需的字段，零值表示缺失。
type Fields struct {
	Model       string
	FocalLength float64
	FNumber     float64
}

// FieldsFromTags 从标签映射中取出需要的字段，单个字段解析失败视为缺失。
func FieldsFromTags(tags Tags) Fields {
	var f Fields
	if tag, ok := tags[exif.Model]; ok {
		if s, err := tag.StringVal(); err == nil {
			f.Model = s
		}
	}
	if tag, ok := tags[exif.FocalLength]; ok {
		f.FocalLength = ratValue(tag)
	}
	if tag, ok := tags[exif.FNumber]; ok {
		f.FNumber = ratValue(tag)
	}
	return f
}

func ratValue(tag *tiff.Tag) float64 {
	if tag.Format() != tiff.RatVal {
		return 0
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Status 区分元数据是否存在。
type Status int

const (
	StatusAbsent Status = iota
	StatusPresent
)

func (s Status) String() string {
	if s == StatusPresent {
		return "present"
	}
	return "absent"
}

// Result 是一次提取的结果。元数据缺失不是错误，Err 只记录被吞掉的解析失败原因。
type Result struct {
	Display string
	Status  Status
	Err     error
}

// Extractor 负责把 EXIF 转换为展示字符串。
type Extractor struct {
	replacements []config.ModelReplacement
}

func NewExtractor(replacements []config.ModelReplacement) *Extractor {
	return &Extractor{replacements: replacements}
}

// Extract 永远不会让图片处理失败：解析失败时返回 StatusAbsent 和空字符串。
func (e *Extractor) Extract(data []byte) Result {
	tags, err := ReadTags(data)
	if errors.Is(err, ErrNoExif) {
		return Result{Status: StatusAbsent}
	}
	if err != nil {
		return Result{Status: StatusAbsent, Err: err}
	}
	display := e.Describe(FieldsFromTags(tags))
	if display == "" {
		return Result{Status: StatusAbsent}
	}
	return Result{Display: display, Status: StatusPresent}
}

// Describe 拼接 "型号 · 焦距mm · f/光圈"，省略缺失的部分。
func (e *Extractor) Describe(f Fields) string {
	parts := make([]string, 0, 3)
	if model := e.CleanModel(f.Model); model != "" {
		parts = append(parts, model)
	}
	if f.FocalLength > 0 {
		parts = append(parts, formatNumber(f.FocalLength)+"mm")
	}
	if f.FNumber > 0 {
		parts = append(parts, "f/"+formatNumber(f.FNumber))
	}
	return strings.Join(parts, displaySeparator)
}

// CleanModel 按顺序执行型号替换规则，并规整空白。
func (e *Extractor) CleanModel(model string) string {
	model = strings.Trim(model, "\x00 ")
	for _, r := range e.replacements {
		if r.From == "" {
			continue
		}
		model = strings.ReplaceAll(model, r.From, r.To)
	}
	return strings.Join(strings.Fields(model), " ")
}

// formatNumber 保留一位小数，并去掉多余的 ".0"。
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
