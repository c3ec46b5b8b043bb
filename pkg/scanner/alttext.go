package scanner

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// 相机或手机自动生成的文件名，不能作为描述
	genericNamePattern = regexp.MustCompile(`(?i)^(?:img|dsc|dscf|dscn|_dsc|_mg|dji|pxl|gopr|mvimg|photo|image)[\s_-]*e?[\d\s_-]*(?:\.mp)?\s*(?:\(\d+\))?$`)
	numericNamePattern = regexp.MustCompile(`^[\d\s_()-]+$`)
	wordSeparators     = strings.NewReplacer("_", " ", "-", " ")
)

// AltOptions 控制替代文本的生成。
type AltOptions struct {
	// Noun 附加在分类名之后，例如 "photograph"。
	Noun string
	// AlbumAliases 把相册目录名（小写）映射为展示名称，例如 nyc -> New York City。
	AlbumAliases map[string]string
}

// AltText 生成图片的替代文本，格式为 "<主题>, <相册> – <分类> <名词>"。
// 文件名是相机默认名称时省略主题；照片不在相册中时省略相册。
func AltText(id Identity, opts AltOptions) string {
	tail := strings.TrimSpace(humanize(id.Category) + " " + opts.Noun)

	var head []string
	if subject := altSubject(id.FileName); subject != "" {
		head = append(head, subject)
	}
	if id.Album != nil {
		if album := albumName(*id.Album, opts.AlbumAliases); album != "" {
			head = append(head, album)
		}
	}
	if len(head) == 0 {
		return tail
	}
	return strings.Join(head, ", ") + " – " + tail
}

func altSubject(fileName string) string {
	stem := strings.TrimSuffix(fileName, path.Ext(fileName))
	if genericNamePattern.MatchString(stem) || numericNamePattern.MatchString(stem) {
		return ""
	}
	return sentenceCase(humanize(stem))
}

// albumName 把 "Japan/Kyoto" 转换为 "Kyoto, Japan"
func albumName(album string, aliases map[string]string) string {
	segments := strings.Split(album, "/")
	names := make([]string, 0, len(segments))
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if alias, ok := aliases[strings.ToLower(seg)]; ok {
			names = append(names, alias)
			continue
		}
		if name := titleCase(humanize(seg)); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func humanize(s string) string {
	return strings.Join(strings.Fields(wordSeparators.Replace(s)), " ")
}

func sentenceCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = sentenceCase(w)
	}
	return strings.Join(words, " ")
}
