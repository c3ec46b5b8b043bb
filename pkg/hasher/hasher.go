package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	// 匿名导入 (blank import) image解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/ajdnik/imghash"
)

// CalculateSHA256FromBytes 从字节切片计算 SHA-256 哈希
func CalculateSHA256FromBytes(data []byte) string {
	hashBytes := sha256.Sum256(data)
	return hex.EncodeToString(hashBytes[:])
}

// CalculatePerceptualHashFromImage 从已解码的 image.Image 对象计算感知哈希
func CalculatePerceptualHashFromImage(img image.Image) string {
	phasher := imghash.NewPHash()
	pHash := phasher.Calculate(img)
	return fmt.Sprintf("%d", pHash)
}

// CalculatePerceptualHashFromBytes 解码图片字节并计算感知哈希(pHash)值。
func CalculatePerceptualHashFromBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return CalculatePerceptualHashFromImage(img), nil
}
