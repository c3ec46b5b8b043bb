package maintenance

import (
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/layout"
	"Portfolio_Pipeline/pkg/manifest"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyManifest 表示清单中没有任何照片，此时删除模式会把所有生成文件当作孤儿，因此拒绝执行。
var ErrEmptyManifest = errors.New("清单为空，拒绝删除生成文件")

// Report 是一次孤儿文件检查的结果。
type Report struct {
	// Scanned 是生成目录中被检查的文件数（不含系统垃圾文件）。
	Scanned int
	// Orphans 是不被清单引用的文件，按路径排序。
	Orphans      []string
	Deleted      int
	DeleteFailed int
	DryRun       bool
	PrunedDirs   int
}

// Reconciler 找出生成目录中不再被清单引用的文件。
type Reconciler struct {
	layout *layout.Layout
	store  manifest.Store
	junk   map[string]struct{}
	prune  bool
	logger *slog.Logger
	// remove 删除单个文件或空目录
	remove func(name string) error
}

func NewReconciler(cfg *config.Config, store manifest.Store, logger *slog.Logger) *Reconciler {
	junk := make(map[string]struct{}, len(cfg.Reconciler.JunkFiles))
	for _, name := range cfg.Reconciler.JunkFiles {
		junk[name] = struct{}{}
	}
	return &Reconciler{
		layout: layout.New(cfg.Pipeline),
		store:  store,
		junk:   junk,
		prune:  cfg.Reconciler.PruneEmptyDirs,
		logger: logger,
		remove: os.Remove,
	}
}

// Allowlist 返回清单引用的全部磁盘路径。
// 清单每个尺寸只记录 JPEG 的路径，同名的其他编码文件也一并放行。
func (r *Reconciler) Allowlist(m *models.Manifest) map[string]struct{} {
	allowed := make(map[string]struct{}, len(m.Photos)*4)
	for _, rec := range m.Photos {
		for _, webPath := range []string{rec.Src, rec.Full} {
			p, ok := r.layout.Resolve(webPath)
			if !ok {
				r.logger.Warn("清单中的路径不属于任何生成目录", "id", rec.ID, "path", webPath)
				continue
			}
			allowed[p] = struct{}{}
			for _, twin := range r.layout.Twins(p) {
				allowed[twin] = struct{}{}
			}
		}
	}
	return allowed
}

// Reconcile 扫描生成目录。deleteOrphans 为 false 时只报告，不删除任何文件。
// 单个文件删除失败只计数，不会中止扫描。
func (r *Reconciler) Reconcile(ctx context.Context, deleteOrphans bool) (*Report, error) {
	m, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("无法读取清单 %s: %w", r.store.Location(), err)
	}
	if deleteOrphans && len(m.Photos) == 0 {
		return nil, ErrEmptyManifest
	}

	allowed := r.Allowlist(m)
	report := &Report{DryRun: !deleteOrphans}
	visited := make(map[string]struct{})

	for _, root := range r.layout.Roots() {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			r.logger.Info("生成目录不存在，跳过", "path", root)
			continue
		}
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || r.isJunk(d.Name()) {
				return nil
			}
			if _, ok := visited[p]; ok {
				return nil
			}
			visited[p] = struct{}{}
			report.Scanned++
			if _, ok := allowed[p]; !ok {
				report.Orphans = append(report.Orphans, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("扫描生成目录 %s 失败: %w", root, err)
		}
	}
	sort.Strings(report.Orphans)

	for _, p := range report.Orphans {
		if !deleteOrphans {
			r.logger.Info("孤儿文件", "path", p)
			continue
		}
		if err := r.remove(p); err != nil {
			report.DeleteFailed++
			r.logger.Error("删除孤儿文件失败", "path", p, "error", err)
			continue
		}
		report.Deleted++
		r.logger.Info("已删除孤儿文件", "path", p)
	}

	if deleteOrphans && r.prune && report.Deleted > 0 {
		report.PrunedDirs = r.pruneEmptyDirs()
	}

	mode := "report"
	if deleteOrphans {
		mode = "delete"
	}
	r.logger.Info("孤儿文件检查完成",
		"mode", mode,
		"scanned", report.Scanned,
		"orphans", len(report.Orphans),
		"deleted", report.Deleted,
		"deleteFailed", report.DeleteFailed,
		"prunedDirs", report.PrunedDirs,
	)
	return report, nil
}

func (r *Reconciler) isJunk(name string) bool {
	_, ok := r.junk[name]
	return ok
}

// pruneEmptyDirs 自下而上删除只剩系统垃圾文件的目录，生成目录本身保留。
func (r *Reconciler) pruneEmptyDirs() int {
	var dirs []string
	roots := make(map[string]struct{})
	for _, root := range r.layout.Roots() {
		roots[root] = struct{}{}
		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != root {
				dirs = append(dirs, p)
			}
			return nil
		})
	}
	// 深的目录先处理
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	pruned := 0
	for _, dir := range dirs {
		if _, ok := roots[dir]; ok {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		removable := true
		for _, e := range entries {
			if e.IsDir() || !r.isJunk(e.Name()) {
				removable = false
				break
			}
		}
		if !removable {
			continue
		}
		for _, e := range entries {
			r.remove(filepath.Join(dir, e.Name()))
		}
		if err := r.remove(dir); err != nil {
			r.logger.Warn("删除空目录失败", "path", dir, "error", err)
			continue
		}
		pruned++
		r.logger.Debug("已删除空目录", "path", dir)
	}
	return pruned
}
