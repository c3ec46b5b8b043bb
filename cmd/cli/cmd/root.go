package cmd

import (
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/internal/task"
	"Portfolio_Pipeline/pkg/logger"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string

	cfg       *config.Config
	appLogger *slog.Logger
	logCloser io.Closer
	tasks     *task.Manager
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "为静态作品集站点生成图片变体和照片清单",
	Long: `portfolio 扫描按 分类/相册 组织的原图目录，生成缩略图和全尺寸图，
并写出站点使用的照片清单 (photos.json)。

手工编辑的说明文字 (caption) 会在每次重新生成时保留。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup(cmd) {
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("无法加载配置: %w", err)
		}
		appLogger, logCloser, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("无法初始化日志: %w", err)
		}
		tasks = task.NewManager(appLogger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// skipSetup 判断命令是否不需要加载配置
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "init":
		return true
	}
	return false
}

// Execute 运行根命令，收到 SIGINT/SIGTERM 时取消正在进行的任务
// printTask 输出任务记录，失败的任务同时附上错误。
func printTask(cmd *cobra.Command, t *task.Task) {
	if t == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "任务 %s [%s] %s，耗时 %s\n", t.Name, t.ID, t.Status, t.Duration().Round(time.Millisecond))
	if t.Error != "" {
		fmt.Fprintf(out, "  错误: %s\n", t.Error)
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件或所在目录 (默认在当前目录查找 config.yaml)")
}
