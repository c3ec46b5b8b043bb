package main

import (
	"Portfolio_Pipeline/cmd/cli/cmd"

	// 注册 WebP 编码器
	_ "Portfolio_Pipeline/pkg/thumbnailer/webp"
)

func main() {
	cmd.Execute()
}
