package cmd

import (
	"Portfolio_Pipeline/pkg/hasher"
	"Portfolio_Pipeline/pkg/metadata"
	"Portfolio_Pipeline/pkg/scanner"
	"Portfolio_Pipeline/pkg/thumbnailer"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var inspectTags bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "诊断单张原图：ID、替代文本、尺寸、哈希和 EXIF",
	Long: `显示流水线会为一张原图推导出的全部信息，便于排查 ID、EXIF 或重复照片问题。
文件位于源目录之外时不显示 ID 相关信息。

Examples:
  portfolio inspect photos/Travel/Japan/IMG_0042.jpg
  portfolio inspect --tags photos/Street/night.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取文件失败: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "文件: %s\n", path)

		if rel, ok := relativeToSource(path, cfg.Pipeline.SourcePath); ok {
			identity, err := scanner.NewClassifier(cfg.Pipeline).Classify(rel)
			if err != nil {
				fmt.Fprintf(out, "ID: 无法推导 (%v)\n", err)
			} else {
				album := "(无)"
				if identity.Album != nil {
					album = *identity.Album
				}
				fmt.Fprintf(out, "ID: %s\n分类: %s\n相册: %s\n", identity.ID, identity.Category, album)
				fmt.Fprintf(out, "替代文本: %s\n", scanner.AltText(identity, scanner.AltOptions{
					Noun:         cfg.Pipeline.AltNoun,
					AlbumAliases: cfg.Pipeline.AlbumAliases,
				}))
			}
		}

		if w, h, err := thumbnailer.ReadDimensions(path); err == nil {
			fmt.Fprintf(out, "原图尺寸: %dx%d\n", w, h)
		} else {
			fmt.Fprintf(out, "原图尺寸: 无法读取 (%v)\n", err)
		}
		fmt.Fprintf(out, "SHA-256: %s\n", hasher.CalculateSHA256FromBytes(data))
		if phash, err := hasher.CalculatePerceptualHashFromBytes(data); err == nil {
			fmt.Fprintf(out, "pHash: %s\n", phash)
		}

		result := metadata.NewExtractor(cfg.Pipeline.ModelReplacements).Extract(data)
		fmt.Fprintf(out, "EXIF: %s (%s)\n", result.Display, result.Status)
		if result.Err != nil {
			fmt.Fprintf(out, "EXIF 解析错误: %v\n", result.Err)
		}

		if inspectTags {
			tags, err := metadata.ReadTags(data)
			if err != nil {
				return nil
			}
			for _, line := range tags.Lines() {
				fmt.Fprintf(out, "  %s\n", line)
			}
		}
		return nil
	},
}

// relativeToSource 返回 path 相对于源目录的路径，path 不在源目录下时返回 false
func relativeToSource(path, source string) (string, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	absSource, err := filepath.Abs(source)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absSource, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectTags, "tags", false, "列出全部 EXIF 标签")
	rootCmd.AddCommand(inspectCmd)
}
