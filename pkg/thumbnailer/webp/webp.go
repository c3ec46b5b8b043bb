// Package webp 为 thumbnailer 注册 WebP 编码器。
// 依赖 libwebp (cgo)，因此单独成包，需要时匿名导入：
//
//	import _ "Portfolio_Pipeline/pkg/thumbnailer/webp"
package webp

import (
	"Portfolio_Pipeline/pkg/thumbnailer"
	"fmt"
	"image"
	"io"

	"github.com/kolesa-team/go-webp/encoder"
	gowebp "github.com/kolesa-team/go-webp/webp"
)

func init() {
	thumbnailer.RegisterEncoder(thumbnailer.WebP, Encode)
}

// Encode 以有损模式编码 WebP。
func Encode(w io.Writer, img image.Image, quality int) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return fmt.Errorf("创建 webp 编码参数失败: %w", err)
	}
	return gowebp.Encode(w, img, options)
}
