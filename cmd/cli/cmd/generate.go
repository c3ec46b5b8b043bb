package cmd

import (
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/pkg/manifest/jsonfile"
	"Portfolio_Pipeline/pkg/scanner"
	"Portfolio_Pipeline/pkg/thumbnailer"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	generateSource  string
	generateWorkers int
	generatePolicy  string
	generateForce   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成图片变体并重写照片清单",
	Long: `为源目录中的每张原图生成缩略图和全尺寸图（已是最新的文件会被跳过），
提取 EXIF 拍摄参数，恢复上一份清单中的说明文字，最后按 ID 排序写出清单。

Examples:
  portfolio generate
  portfolio generate --source ~/Pictures/portfolio --workers 0
  portfolio generate --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline := cfg.Pipeline
		flags := cmd.Flags()
		if flags.Changed("source") {
			pipeline.SourcePath = generateSource
		}
		if flags.Changed("workers") {
			pipeline.WorkerCount = generateWorkers
		}
		if flags.Changed("policy") {
			pipeline.CachePolicy = generatePolicy
		}
		runCfg := *cfg
		runCfg.Pipeline = pipeline
		if err := runCfg.Validate(); err != nil {
			return err
		}

		store := jsonfile.NewStore(pipeline.ManifestPath)
		engine := thumbnailer.NewImagingEngine()

		t, err := tasks.Run(cmd.Context(), "generate", func(ctx context.Context, logger *slog.Logger) error {
			builder, err := scanner.NewBuilder(pipeline, store, engine, logger, generateForce)
			if err != nil {
				return err
			}
			res, err := builder.Run(ctx)
			if err != nil {
				return err
			}
			printStats(cmd, res.Stats, store.Location())
			return nil
		})
		printTask(cmd, t)
		return err
	},
}

func printStats(cmd *cobra.Command, s scanner.Stats, manifestPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "清单已写入 %s\n", manifestPath)
	fmt.Fprintf(out, "  成功: %d  失败: %d  忽略: %d\n", s.Succeeded, s.Failed, s.Ignored)
	fmt.Fprintf(out, "  生成缩略图: %d  生成全尺寸图: %d  复用: %d\n", s.ThumbsGenerated, s.FullsGenerated, s.Skipped)
	fmt.Fprintf(out, "  恢复说明文字: %d  内容重复: %d\n", s.CaptionsRestored, s.Duplicates)
}

func init() {
	generateCmd.Flags().StringVar(&generateSource, "source", "", "原图目录 (覆盖 pipeline.sourcePath)")
	generateCmd.Flags().IntVar(&generateWorkers, "workers", 1, "并发数，<= 0 表示使用全部 CPU")
	generateCmd.Flags().StringVar(&generatePolicy, "policy", config.CachePolicyFreshness, "缓存策略: freshness 或 existence")
	generateCmd.Flags().BoolVarP(&generateForce, "force", "f", false, "忽略缓存，重新生成所有变体")
	rootCmd.AddCommand(generateCmd)
}
