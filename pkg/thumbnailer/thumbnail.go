package thumbnailer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	// 匿名导入 image解码器
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedFormat 表示没有为该格式注册编码器。
var ErrUnsupportedFormat = errors.New("不支持的输出格式")

// Format 是输出编码格式。
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
)

// Ext 返回该格式输出文件使用的扩展名。
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case WebP:
		return ".webp"
	default:
		return "." + string(f)
	}
}

// EncodeFunc 把图像按给定质量编码写入 w。不支持质量参数的格式可以忽略它。
type EncodeFunc func(w io.Writer, img image.Image, quality int) error

var (
	encodersMu sync.RWMutex
	encoders   = map[Format]EncodeFunc{
		JPEG: encodeJPEG,
		PNG:  encodePNG,
	}
)

// RegisterEncoder 注册一种输出格式的编码器。
// 需要 cgo 的编码器（例如 webp）放在独立的包里，通过匿名导入注册，和 image 解码器的用法一致。
func RegisterEncoder(f Format, fn EncodeFunc) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	encoders[f] = fn
}

// Supports 报告该格式是否已注册编码器。
func Supports(f Format) bool {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	_, ok := encoders[f]
	return ok
}

func lookupEncoder(f Format) (EncodeFunc, error) {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	fn, ok := encoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return fn, nil
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func encodePNG(w io.Writer, img image.Image, _ int) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Options 描述一次转码的目标。
type Options struct {
	Width   int
	Quality int
	Format  Format
}

// Output 是转码结果，Width/Height 为最终输出尺寸。
type Output struct {
	Data   []byte
	Width  int
	Height int
}

// Engine 是图片处理引擎：给定源文件字节、目标宽度、质量和格式，返回编码后的字节和最终尺寸。
type Engine interface {
	Transcode(src []byte, opts Options) (*Output, error)
}

// ImagingEngine 是基于 disintegration/imaging 的 Engine 实现。
type ImagingEngine struct{}

func NewImagingEngine() *ImagingEngine {
	return &ImagingEngine{}
}

// Transcode 解码源图（按 EXIF 方向自动旋转），等比缩放到目标宽度后编码。
// 源图比目标宽度更窄时不放大。
func (e *ImagingEngine) Transcode(src []byte, opts Options) (*Output, error) {
	if opts.Width <= 0 {
		return nil, fmt.Errorf("无效的目标宽度: %d", opts.Width)
	}
	encode, err := lookupEncoder(opts.Format)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}

	if img.Bounds().Dx() > opts.Width {
		img = imaging.Resize(img, opts.Width, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := encode(buf, img, opts.Quality); err != nil {
		return nil, fmt.Errorf("编码 %s 失败: %w", opts.Format, err)
	}

	b := img.Bounds()
	return &Output{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// ReadDimensions 只读取图片头部信息获取尺寸，不解码像素。
func ReadDimensions(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("读取图片尺寸失败 %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
