package scanner

import (
	"bytes"
	"Portfolio_Pipeline/config"
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/logger"
	"Portfolio_Pipeline/pkg/manifest"
	"Portfolio_Pipeline/pkg/manifest/jsonfile"
	"Portfolio_Pipeline/pkg/thumbnailer"
	"context"
	"errors"
	"image/color"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEngine 包装真实引擎并记录调用次数
type countingEngine struct {
	inner thumbnailer.Engine
	mu    sync.Mutex
	calls int
}

func (e *countingEngine) Transcode(src []byte, opts thumbnailer.Options) (*thumbnailer.Output, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.inner.Transcode(src, opts)
}

func (e *countingEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	root   string
	cfg    config.PipelineConfig
	store  *jsonfile.Store
	engine *countingEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default().Pipeline
	cfg.SourcePath = filepath.Join(root, "photos")
	cfg.ThumbPath = filepath.Join(root, "public", "images", "thumbs")
	cfg.FullPath = filepath.Join(root, "public", "images", "full")
	cfg.ManifestPath = filepath.Join(root, "photos.json")
	cfg.ThumbWidth = 16
	cfg.FullWidth = 32
	cfg.Encodings = []string{config.EncodingJPEG, config.EncodingPNG}
	require.NoError(t, os.MkdirAll(cfg.SourcePath, 0755))

	return &fixture{
		root:   root,
		cfg:    cfg,
		store:  jsonfile.NewStore(cfg.ManifestPath),
		engine: &countingEngine{inner: thumbnailer.NewImagingEngine()},
	}
}

// addImage 写入一张 64x48 的纯色图片，修改时间设为三小时前
func (f *fixture) addImage(t *testing.T, rel string, c color.Color) string {
	t.Helper()
	p := filepath.Join(f.cfg.SourcePath, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	img := imaging.New(64, 48, c)
	require.NoError(t, imaging.Save(img, p))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(p, old, old))
	return p
}

func (f *fixture) addFile(t *testing.T, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(f.cfg.SourcePath, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0644))
}

func (f *fixture) run(t *testing.T, force bool) *RunResult {
	t.Helper()
	b, err := NewBuilder(f.cfg, f.store, f.engine, logger.Discard(), force)
	require.NoError(t, err)
	res, err := b.Run(context.Background())
	require.NoError(t, err)
	return res
}

func (f *fixture) setOutputTimes(t *testing.T, ts time.Time) {
	t.Helper()
	for _, dir := range []string{f.cfg.ThumbPath, f.cfg.FullPath} {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			return os.Chtimes(p, ts, ts)
		})
		require.NoError(t, err)
	}
}

func TestBuilder_Run(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Travel/Japan/Kyoto/golden_pavilion.jpg", color.RGBA{R: 200, A: 255})
	f.addImage(t, "Street/IMG_0001.jpg", color.RGBA{G: 200, A: 255})
	f.addImage(t, "lonely.jpg", color.RGBA{B: 200, A: 255})
	f.addFile(t, "Street/broken.jpg", []byte("not an image"))

	res := f.run(t, false)

	assert.Equal(t, 2, res.Stats.Succeeded)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Equal(t, 1, res.Stats.Ignored)
	assert.Equal(t, 4, res.Stats.ThumbsGenerated)
	assert.Equal(t, 4, res.Stats.FullsGenerated)
	assert.Equal(t, 0, res.Stats.Skipped)

	album := "Japan/Kyoto"
	want := []models.PhotoRecord{
		{
			ID:       "Street__IMG_0001",
			Src:      "/images/thumbs/Street/IMG_0001.jpg",
			Full:     "/images/full/Street/IMG_0001.jpg",
			Alt:      "Street photograph",
			Category: "Street",
			Width:    32,
			Height:   24,
		},
		{
			ID:       "Travel__Japan__Kyoto__golden_pavilion",
			Src:      "/images/thumbs/Travel/Japan/Kyoto/golden_pavilion.jpg",
			Full:     "/images/full/Travel/Japan/Kyoto/golden_pavilion.jpg",
			Alt:      "Golden pavilion, Kyoto, Japan – Travel photograph",
			Category: "Travel",
			Album:    &album,
			Width:    32,
			Height:   24,
		},
	}
	assert.Equal(t, want, res.Manifest.Photos)

	for _, p := range []string{
		filepath.Join(f.cfg.ThumbPath, "Street", "IMG_0001.jpg"),
		filepath.Join(f.cfg.ThumbPath, "Street", "IMG_0001.png"),
		filepath.Join(f.cfg.FullPath, "Travel", "Japan", "Kyoto", "golden_pavilion.png"),
	} {
		assert.FileExists(t, p)
	}
	w, h, err := thumbnailer.ReadDimensions(filepath.Join(f.cfg.ThumbPath, "Street", "IMG_0001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []int{16, 12}, []int{w, h})

	saved, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, res.Manifest, saved)
}

func TestBuilder_Run_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Travel/Japan/a.jpg", color.RGBA{R: 200, A: 255})
	f.addImage(t, "Street/b.png", color.RGBA{G: 200, A: 255})

	first := f.run(t, false)
	firstBytes, err := os.ReadFile(f.cfg.ManifestPath)
	require.NoError(t, err)
	callsAfterFirst := f.engine.Calls()

	second := f.run(t, false)
	secondBytes, err := os.ReadFile(f.cfg.ManifestPath)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, f.engine.Calls())
	assert.Equal(t, 0, second.Stats.ThumbsGenerated)
	assert.Equal(t, 0, second.Stats.FullsGenerated)
	assert.Equal(t, 8, second.Stats.Skipped)
	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Equal(t, string(firstBytes), string(secondBytes))

	// 尺寸从已有的全尺寸图读回
	for _, rec := range second.Manifest.Photos {
		assert.Equal(t, 32, rec.Width)
		assert.Equal(t, 24, rec.Height)
	}
}

func TestBuilder_Run_FreshnessInvalidation(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Travel/a.jpg", color.RGBA{R: 200, A: 255})
	touched := f.addImage(t, "Travel/b.jpg", color.RGBA{G: 200, A: 255})

	f.run(t, false)
	now := time.Now()
	f.setOutputTimes(t, now.Add(-time.Hour))
	require.NoError(t, os.Chtimes(touched, now.Add(-30*time.Minute), now.Add(-30*time.Minute)))

	res := f.run(t, false)
	assert.Equal(t, 2, res.Stats.ThumbsGenerated)
	assert.Equal(t, 2, res.Stats.FullsGenerated)
	assert.Equal(t, 4, res.Stats.Skipped)

	// existence 策略不看修改时间
	require.NoError(t, os.Chtimes(touched, now, now))
	f.setOutputTimes(t, now.Add(-time.Hour))
	f.cfg.CachePolicy = config.CachePolicyExistence
	res = f.run(t, false)
	assert.Equal(t, 0, res.Stats.ThumbsGenerated+res.Stats.FullsGenerated)

	res = f.run(t, true)
	assert.Equal(t, 4, res.Stats.ThumbsGenerated)
	assert.Equal(t, 4, res.Stats.FullsGenerated)
}

func TestBuilder_Run_PreservesCaptions(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "A/b.jpg", color.RGBA{R: 200, A: 255})
	require.NoError(t, f.store.Save(&models.Manifest{Photos: []models.PhotoRecord{
		{ID: "A__b", Caption: "Hello"},
		{ID: "Removed__x", Caption: "Gone"},
	}}))

	res := f.run(t, false)
	require.Len(t, res.Manifest.Photos, 1)
	assert.Equal(t, "A__b", res.Manifest.Photos[0].ID)
	assert.Equal(t, "Hello", res.Manifest.Photos[0].Caption)
	assert.Equal(t, 1, res.Stats.CaptionsRestored)

	// 再跑一次，说明文字依然存在
	res = f.run(t, false)
	assert.Equal(t, "Hello", res.Manifest.Photos[0].Caption)
}

func TestBuilder_Run_SourceMissing(t *testing.T) {
	f := newFixture(t)
	f.cfg.SourcePath = filepath.Join(f.root, "missing")

	b, err := NewBuilder(f.cfg, f.store, f.engine, logger.Discard(), false)
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	assert.True(t, errors.Is(err, ErrSourceMissing))

	_, err = f.store.Load()
	assert.True(t, errors.Is(err, manifest.ErrNotFound))
}

func TestBuilder_Run_DuplicateIDs(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Street/a.jpg", color.RGBA{R: 200, A: 255})
	f.addImage(t, "Street/a.png", color.RGBA{G: 200, A: 255})

	res := f.run(t, false)
	assert.Equal(t, 1, res.Stats.Succeeded)
	assert.Equal(t, 1, res.Stats.Failed)
	require.Len(t, res.Manifest.Photos, 1)
	assert.Equal(t, "Street__a", res.Manifest.Photos[0].ID)
}

func TestBuilder_Run_CaseDistinctNames(t *testing.T) {
	f := newFixture(t)
	if caseInsensitiveFS(f.root) {
		t.Skip("临时目录所在的文件系统忽略大小写")
	}
	f.addImage(t, "Street/A.jpg", color.RGBA{R: 200, A: 255})
	f.addImage(t, "Street/a.jpg", color.RGBA{G: 200, A: 255})

	res := f.run(t, false)
	assert.Equal(t, 2, res.Stats.Succeeded)
	assert.Equal(t, 0, res.Stats.Failed)
	require.Len(t, res.Manifest.Photos, 2)
	assert.Equal(t, "Street__A", res.Manifest.Photos[0].ID)
	assert.Equal(t, "Street__a", res.Manifest.Photos[1].ID)
	assert.FileExists(t, filepath.Join(f.cfg.ThumbPath, "Street", "A.jpg"))
	assert.FileExists(t, filepath.Join(f.cfg.ThumbPath, "Street", "a.jpg"))
}

func TestBuilder_Plan_FoldsCaseOnInsensitiveOutput(t *testing.T) {
	f := newFixture(t)
	b, err := NewBuilder(f.cfg, f.store, f.engine, logger.Discard(), false)
	require.NoError(t, err)
	b.foldCase = true

	var stats Stats
	jobs := b.plan([]SourceImage{{RelPath: "Street/A.jpg"}, {RelPath: "Street/a.jpg"}}, &stats)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Street__A", jobs[0].identity.ID)
	assert.Equal(t, 1, stats.Failed)

	b.foldCase = false
	stats = Stats{}
	jobs = b.plan([]SourceImage{{RelPath: "Street/A.jpg"}, {RelPath: "Street/a.jpg"}}, &stats)
	assert.Len(t, jobs, 2)
	assert.Equal(t, 0, stats.Failed)
}

func TestSwapCase(t *testing.T) {
	assert.Equal(t, "THUMBS", swapCase("thumbs"))
	assert.Equal(t, "fULL-2", swapCase("Full-2"))
	assert.Equal(t, "2024", swapCase("2024"))
}

// withExifSegment 在 JPEG 的 SOI 之后插入一个 APP1 段
func withExifSegment(t *testing.T, payload []byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, imaging.New(64, 48, color.White), imaging.JPEG))
	jpg := buf.Bytes()

	seg := append([]byte("Exif\x00\x00"), payload...)
	size := len(seg) + 2
	out := append([]byte{}, jpg[:2]...)
	out = append(out, 0xFF, 0xE1, byte(size>>8), byte(size))
	out = append(out, seg...)
	return append(out, jpg[2:]...)
}

func TestBuilder_Run_ExifLogLevels(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Street/plain.jpg", color.RGBA{R: 200, A: 255})
	f.addFile(t, "Street/mangled.jpg", withExifSegment(t, []byte("garbage!")))

	logs := new(bytes.Buffer)
	l := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b, err := NewBuilder(f.cfg, f.store, f.engine, l, false)
	require.NoError(t, err)
	res, err := b.Run(context.Background())
	require.NoError(t, err)

	// EXIF 损坏不影响收录
	assert.Equal(t, 2, res.Stats.Succeeded)
	for _, p := range res.Manifest.Photos {
		assert.Equal(t, "", p.Exif)
	}

	var warned, absent []string
	for _, line := range bytes.Split(logs.Bytes(), []byte("\n")) {
		switch {
		case bytes.Contains(line, []byte("level=WARN")) && bytes.Contains(line, []byte("EXIF 解析失败")):
			warned = append(warned, string(line))
		case bytes.Contains(line, []byte("level=DEBUG")) && bytes.Contains(line, []byte("原图没有 EXIF")):
			absent = append(absent, string(line))
		}
	}
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "Street__mangled")
	require.Len(t, absent, 1)
	assert.Contains(t, absent[0], "Street__plain")
}

func TestBuilder_Run_ContentDuplicatesAreKept(t *testing.T) {
	f := newFixture(t)
	src := f.addImage(t, "Street/a.jpg", color.RGBA{R: 200, A: 255})
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	f.addFile(t, "Travel/a.jpg", data)

	res := f.run(t, false)
	assert.Equal(t, 2, res.Stats.Succeeded)
	assert.Equal(t, 1, res.Stats.Duplicates)
}

func TestBuilder_Run_WorkerPoolMatchesSequential(t *testing.T) {
	seq := newFixture(t)
	par := newFixture(t)
	par.cfg.WorkerCount = 4
	for _, f := range []*fixture{seq, par} {
		f.addImage(t, "Travel/Japan/a.jpg", color.RGBA{R: 200, A: 255})
		f.addImage(t, "Travel/b.jpg", color.RGBA{G: 200, A: 255})
		f.addImage(t, "Street/c.jpg", color.RGBA{B: 200, A: 255})
		f.addImage(t, "Street/d.png", color.RGBA{R: 100, G: 100, A: 255})
		f.addFile(t, "Street/e.jpg", []byte("broken"))
	}

	a := seq.run(t, false)
	b := par.run(t, false)
	assert.Equal(t, a.Manifest, b.Manifest)
	assert.Equal(t, a.Stats, b.Stats)
}

func TestBuilder_Run_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "Street/a.jpg", color.RGBA{R: 200, A: 255})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := NewBuilder(f.cfg, f.store, f.engine, logger.Discard(), false)
	require.NoError(t, err)
	_, err = b.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, f.cfg.ManifestPath)
}

func TestBuilder_Run_SkipsOutputInsideSource(t *testing.T) {
	f := newFixture(t)
	f.cfg.ThumbPath = filepath.Join(f.cfg.SourcePath, "_generated", "thumbs")
	f.cfg.FullPath = filepath.Join(f.cfg.SourcePath, "_generated", "full")
	f.addImage(t, "Street/a.jpg", color.RGBA{R: 200, A: 255})

	f.run(t, false)
	res := f.run(t, false)
	require.Len(t, res.Manifest.Photos, 1)
	assert.Equal(t, 0, res.Stats.Failed)
}

func TestNewBuilder_UnsupportedEncoding(t *testing.T) {
	f := newFixture(t)
	f.cfg.Encodings = []string{config.EncodingJPEG, "avif"}
	_, err := NewBuilder(f.cfg, f.store, f.engine, logger.Discard(), false)
	assert.True(t, errors.Is(err, thumbnailer.ErrUnsupportedFormat))
}
