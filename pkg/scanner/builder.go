package scanner

import (
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/hasher"
	"Portfolio_Pipeline/pkg/layout"
	"Portfolio_Pipeline/pkg/manifest"
	"Portfolio_Pipeline/pkg/metadata"
	"Portfolio_Pipeline/pkg/thumbnailer"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// ErrDuplicateID 表示两张原图推导出了相同的 ID 或相同的生成路径，后出现的那张被排除。
var ErrDuplicateID = errors.New("照片 ID 重复")

// Stats 是一次运行的汇总计数。生成和跳过按文件计数，一张图对应 尺寸数×编码数 个文件。
type Stats struct {
	Succeeded        int
	ThumbsGenerated  int
	FullsGenerated   int
	Skipped          int
	Failed           int
	CaptionsRestored int
	// Duplicates 是内容与另一张已收录照片完全相同的照片数，它们仍然会被收录。
	Duplicates int
	// Ignored 是按 rootFiles=skip 策略忽略的根目录文件数。
	Ignored int
}

// RunResult 是一次运行的产物。
type RunResult struct {
	Manifest *models.Manifest
	Stats    Stats
}

type sizeSpec struct {
	class   layout.SizeClass
	width   int
	quality int
}

// job 是计划阶段确定下来的一张待处理原图。
type job struct {
	source    SourceImage
	identity  Identity
	assetStem string
}

type itemResult struct {
	record    models.PhotoRecord
	thumbs    int
	fulls     int
	skipped   int
	captioned bool
	sha256    string
	phash     string
	err       error
}

// Builder 驱动整条流水线：枚举原图，逐张分类、生成变体、提取元数据、恢复说明文字，最后写出有序的清单。
type Builder struct {
	cfg        config.PipelineConfig
	layout     *layout.Layout
	classifier *Classifier
	cache      *VariantCache
	engine     thumbnailer.Engine
	extractor  *metadata.Extractor
	store      manifest.Store
	logger     *slog.Logger
	numWorkers int
	sizes      []sizeSpec
	alt        AltOptions
	// foldCase 为 true 时生成目录所在的文件系统忽略大小写
	foldCase bool
}

// NewBuilder 创建 Builder。force 为 true 时忽略缓存，重新生成所有变体。
func NewBuilder(cfg config.PipelineConfig, store manifest.Store, engine thumbnailer.Engine, logger *slog.Logger, force bool) (*Builder, error) {
	l := layout.New(cfg)
	for _, f := range l.Encodings() {
		if !thumbnailer.Supports(f) {
			return nil, fmt.Errorf("创建 Builder 失败: %w: %s", thumbnailer.ErrUnsupportedFormat, f)
		}
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	return &Builder{
		cfg:        cfg,
		layout:     l,
		classifier: NewClassifier(cfg),
		cache:      NewVariantCache(cfg.CachePolicy, force),
		engine:     engine,
		extractor:  metadata.NewExtractor(cfg.ModelReplacements),
		store:      store,
		logger:     logger,
		numWorkers: workerCount,
		sizes: []sizeSpec{
			{class: layout.Thumb, width: cfg.ThumbWidth, quality: cfg.ThumbQuality},
			{class: layout.Full, width: cfg.FullWidth, quality: cfg.FullQuality},
		},
		alt:      AltOptions{Noun: cfg.AltNoun, AlbumAliases: cfg.AlbumAliases},
		foldCase: caseInsensitiveFS(l.Root(layout.Thumb)),
	}, nil
}

// Run 执行一次完整的生成。只有源目录缺失、运行被取消或清单无法写出时返回错误，
// 单张图片的失败只会被记录并计数。
func (b *Builder) Run(ctx context.Context) (*RunResult, error) {
	b.logger.Info("--- 阶段 1/4: 枚举原图 ---", "source", b.cfg.SourcePath)
	images, err := Enumerate(b.cfg.SourcePath, b.layout.Roots()...)
	if err != nil {
		return nil, err
	}
	images = Dedupe(images)
	b.logger.Info("发现原图", "count", len(images))

	var stats Stats
	jobs := b.plan(images, &stats)
	captions := LoadCaptions(b.store, b.logger)

	b.logger.Info("--- 阶段 2/4: 生成变体 ---", "jobs", len(jobs), "workers", b.numWorkers)
	results := b.process(ctx, jobs, captions)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("运行被取消，清单未更新: %w", err)
	}

	b.logger.Info("--- 阶段 3/4: 汇总 ---")
	m := &models.Manifest{Photos: make([]models.PhotoRecord, 0, len(results))}
	seenContent := make(map[string]string)
	seenSimilar := make(map[string]string)
	ids := make(map[string]struct{}, len(results))
	for i, res := range results {
		if res.err != nil {
			stats.Failed++
			b.logger.Error("处理图片失败", "path", jobs[i].source.RelPath, "error", res.err)
			continue
		}
		stats.Succeeded++
		stats.ThumbsGenerated += res.thumbs
		stats.FullsGenerated += res.fulls
		stats.Skipped += res.skipped
		if res.captioned {
			stats.CaptionsRestored++
		}

		id := res.record.ID
		if first, ok := seenContent[res.sha256]; ok {
			stats.Duplicates++
			b.logger.Warn("发现内容完全相同的照片", "id", id, "sameAs", first)
		} else {
			seenContent[res.sha256] = id
			if res.phash != "" {
				if first, ok := seenSimilar[res.phash]; ok {
					b.logger.Info("发现相似照片", "id", id, "similarTo", first)
				} else {
					seenSimilar[res.phash] = id
				}
			}
		}

		ids[id] = struct{}{}
		m.Photos = append(m.Photos, res.record)
	}

	if orphaned := captions.Orphaned(ids); len(orphaned) > 0 {
		b.logger.Warn("以下说明文字对应的照片已不存在，将从清单中消失", "count", len(orphaned), "ids", strings.Join(orphaned, ", "))
	}

	sort.Slice(m.Photos, func(i, j int) bool { return m.Photos[i].ID < m.Photos[j].ID })

	b.logger.Info("--- 阶段 4/4: 写出清单 ---", "path", b.store.Location())
	if err := b.store.Save(m); err != nil {
		return nil, fmt.Errorf("写出清单失败: %w", err)
	}

	b.logger.Info("生成完成",
		"succeeded", stats.Succeeded,
		"thumbsGenerated", stats.ThumbsGenerated,
		"fullsGenerated", stats.FullsGenerated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"captionsRestored", stats.CaptionsRestored,
		"duplicates", stats.Duplicates,
		"ignored", stats.Ignored,
	)
	return &RunResult{Manifest: m, Stats: stats}, nil
}

// plan 为每张原图推导身份，并在处理前排除 ID 或生成路径冲突的原图。
// images 已按相对路径排序，所以冲突时保留哪一张是确定的。
func (b *Builder) plan(images []SourceImage, stats *Stats) []job {
	jobs := make([]job, 0, len(images))
	ids := make(map[string]string, len(images))
	stems := make(map[string]string, len(images))
	for _, img := range images {
		identity, err := b.classifier.Classify(img.RelPath)
		if err != nil {
			if errors.Is(err, ErrRootLevelFile) {
				stats.Ignored++
				b.logger.Warn("跳过根目录下的文件，没有分类目录", "path", img.RelPath)
				continue
			}
			stats.Failed++
			b.logger.Error("无法解析照片路径", "path", img.RelPath, "error", err)
			continue
		}

		if first, ok := ids[identity.ID]; ok {
			stats.Failed++
			b.logger.Error("处理图片失败", "path", img.RelPath, "error", fmt.Errorf("%w: %s 与 %s", ErrDuplicateID, identity.ID, first))
			continue
		}
		stem := b.layout.AssetStem(identity.RelStem)
		stemKey := stem
		if b.foldCase {
			stemKey = strings.ToLower(stem)
		}
		if first, ok := stems[stemKey]; ok {
			stats.Failed++
			b.logger.Error("处理图片失败", "path", img.RelPath, "error", fmt.Errorf("%w: 生成路径 %s 与 %s 冲突", ErrDuplicateID, stem, first))
			continue
		}
		ids[identity.ID] = img.RelPath
		stems[stemKey] = img.RelPath
		jobs = append(jobs, job{source: img, identity: identity, assetStem: stem})
	}
	return jobs
}

// process 处理所有任务，结果与 jobs 一一对应。
// 每张图片拥有互不相交的输出路径，worker 之间只共享只读状态。
func (b *Builder) process(ctx context.Context, jobs []job, captions CaptionMap) []itemResult {
	results := make([]itemResult, len(jobs))
	if b.numWorkers <= 1 || len(jobs) <= 1 {
		for i, j := range jobs {
			if ctx.Err() != nil {
				break
			}
			results[i] = b.buildRecord(j, captions)
		}
		return results
	}

	var wg sync.WaitGroup
	tasks := make(chan int, len(jobs))
	for w := 0; w < b.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				if ctx.Err() != nil {
					continue
				}
				results[i] = b.buildRecord(jobs[i], captions)
			}
		}()
	}
	for i := range jobs {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return results
}

// buildRecord 完成单张图片的全部处理，任何一步失败都只影响这张图片。
func (b *Builder) buildRecord(j job, captions CaptionMap) itemResult {
	var res itemResult
	data, err := os.ReadFile(j.source.Path)
	if err != nil {
		res.err = fmt.Errorf("读取原图失败: %w", err)
		return res
	}

	width, height := 0, 0
	for _, size := range b.sizes {
		for _, f := range b.layout.Encodings() {
			target := b.layout.FilePath(size.class, j.assetStem, f)
			decision, err := b.cache.Decide(target, j.source.ModTime)
			if err != nil {
				res.err = err
				return res
			}
			if !decision.NeedsGeneration() {
				res.skipped++
				continue
			}

			out, err := b.engine.Transcode(data, thumbnailer.Options{Width: size.width, Quality: size.quality, Format: f})
			if err != nil {
				res.err = fmt.Errorf("生成 %s %s 失败: %w", size.class, f, err)
				return res
			}
			if err := writeFileAtomic(target, out.Data); err != nil {
				res.err = err
				return res
			}
			b.logger.Debug("已生成变体", "id", j.identity.ID, "size", size.class, "format", f, "reason", decision)

			if size.class == layout.Thumb {
				res.thumbs++
			} else {
				res.fulls++
				if f == b.layout.Primary() {
					width, height = out.Width, out.Height
				}
			}
		}
	}

	// 全尺寸图被复用时，从磁盘上的文件读回尺寸
	if width == 0 || height == 0 {
		primary := b.layout.FilePath(layout.Full, j.assetStem, b.layout.Primary())
		width, height, err = thumbnailer.ReadDimensions(primary)
		if err != nil {
			res.err = err
			return res
		}
	}

	meta := b.extractor.Extract(data)
	if meta.Err != nil {
		b.logger.Warn("EXIF 解析失败，拍摄参数留空", "id", j.identity.ID, "path", j.source.RelPath, "error", meta.Err)
	} else if meta.Status == metadata.StatusAbsent {
		b.logger.Debug("原图没有 EXIF", "id", j.identity.ID)
	}

	res.record = models.PhotoRecord{
		ID:       j.identity.ID,
		Src:      b.layout.WebPath(layout.Thumb, j.assetStem),
		Full:     b.layout.WebPath(layout.Full, j.assetStem),
		Alt:      AltText(j.identity, b.alt),
		Category: j.identity.Category,
		Album:    j.identity.Album,
		Exif:     meta.Display,
		Width:    width,
		Height:   height,
	}
	res.captioned = captions.Apply(&res.record)

	res.sha256 = hasher.CalculateSHA256FromBytes(data)
	if b.cfg.DetectSimilar {
		if phash, err := hasher.CalculatePerceptualHashFromBytes(data); err == nil {
			res.phash = phash
		} else {
			b.logger.Debug("计算感知哈希失败", "id", j.identity.ID, "error", err)
		}
	}
	return res
}

// writeFileAtomic 先写入同目录下的临时文件再重命名，中断时不会留下半个文件。
func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("无法创建临时文件: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入 %s 失败: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("写入 %s 失败: %w", target, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("设置 %s 权限失败: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换 %s 失败: %w", target, err)
	}
	return nil
}

// caseInsensitiveFS 判断 dir 所在的文件系统是否忽略大小写。
// dir 不存在时检查最近的已存在上级目录，路径中没有字母时按大小写敏感处理。
func caseInsensitiveFS(dir string) bool {
	p, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	for {
		if info, err := os.Stat(p); err == nil {
			base := filepath.Base(p)
			if swapped := swapCase(base); swapped != base {
				other, err := os.Stat(filepath.Join(filepath.Dir(p), swapped))
				return err == nil && os.SameFile(info, other)
			}
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsUpper(r) {
			return unicode.ToLower(r)
		}
		return unicode.ToUpper(r)
	}, s)
}
