package cmd

import (
	"Portfolio_Pipeline/pkg/maintenance"
	"Portfolio_Pipeline/pkg/manifest/jsonfile"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var orphansDelete bool

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "找出（并可选删除）不再被清单引用的生成文件",
	Long: `对照照片清单检查缩略图和全尺寸图目录，列出清单没有引用的文件。
默认只报告；加上 --delete 才会删除。清单为空时拒绝删除。

Examples:
  portfolio orphans
  portfolio orphans --delete`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := jsonfile.NewStore(cfg.Pipeline.ManifestPath)

		t, err := tasks.Run(cmd.Context(), "orphans", func(ctx context.Context, logger *slog.Logger) error {
			report, err := maintenance.NewReconciler(cfg, store, logger).Reconcile(ctx, orphansDelete)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range report.Orphans {
				fmt.Fprintln(out, p)
			}
			if report.DryRun {
				fmt.Fprintf(out, "共检查 %d 个文件，发现 %d 个孤儿文件（仅报告，未删除）\n", report.Scanned, len(report.Orphans))
			} else {
				fmt.Fprintf(out, "共检查 %d 个文件，删除 %d 个孤儿文件，失败 %d 个，清理空目录 %d 个\n",
					report.Scanned, report.Deleted, report.DeleteFailed, report.PrunedDirs)
			}
			return nil
		})
		printTask(cmd, t)
		return err
	},
}

func init() {
	orphansCmd.Flags().BoolVar(&orphansDelete, "delete", false, "删除找到的孤儿文件")
	rootCmd.AddCommand(orphansCmd)
}
