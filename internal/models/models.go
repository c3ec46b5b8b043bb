package models

// PhotoRecord 是清单中的一条照片记录，对应前端站点展示的一张照片。
// 字段顺序即 JSON 输出顺序，保持稳定以便清单可以直接 diff。
type PhotoRecord struct {
	// ID 由相对路径推导而来，在一次运行中唯一，且只要源目录结构不变就保持稳定。
	ID string `json:"id"`

	// Src 是缩略图的 web 路径。
	Src string `json:"src"`

	// Full 是全尺寸图的 web 路径。
	Full string `json:"full"`

	Alt      string `json:"alt"`
	Category string `json:"category"`

	// Album 为 nil 表示照片直接位于分类目录下，序列化为 null。
	Album *string `json:"album"`

	// Exif 是展示用的拍摄参数字符串，没有元数据时为空字符串。
	Exif string `json:"exif"`

	// Width 和 Height 取自全尺寸输出文件，而不是源文件。
	Width  int `json:"width"`
	Height int `json:"height"`

	// Caption 由用户手工编辑，每次重新生成时从上一份清单中继承。
	Caption string `json:"caption,omitempty"`
}

// Manifest 是整个清单文件的顶层结构。
type Manifest struct {
	Photos []PhotoRecord `json:"photos"`
}
