package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	CachePolicyFreshness = "freshness"
	CachePolicyExistence = "existence"

	RootFilesSkip          = "skip"
	RootFilesUncategorized = "uncategorized"

	EncodingJPEG = "jpeg"
	EncodingPNG  = "png"
	EncodingWebP = "webp"

	envPrefix = "PORTFOLIO"
)

// ModelReplacement 是相机型号清洗时的一条替换规则，按配置顺序依次执行。
type ModelReplacement struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
}

type PipelineConfig struct {
	SourcePath        string             `mapstructure:"sourcePath" yaml:"sourcePath"`
	ThumbPath         string             `mapstructure:"thumbPath" yaml:"thumbPath"`
	FullPath          string             `mapstructure:"fullPath" yaml:"fullPath"`
	ThumbWebPrefix    string             `mapstructure:"thumbWebPrefix" yaml:"thumbWebPrefix"`
	FullWebPrefix     string             `mapstructure:"fullWebPrefix" yaml:"fullWebPrefix"`
	ManifestPath      string             `mapstructure:"manifestPath" yaml:"manifestPath"`
	ThumbWidth        int                `mapstructure:"thumbWidth" yaml:"thumbWidth"`
	FullWidth         int                `mapstructure:"fullWidth" yaml:"fullWidth"`
	ThumbQuality      int                `mapstructure:"thumbQuality" yaml:"thumbQuality"`
	FullQuality       int                `mapstructure:"fullQuality" yaml:"fullQuality"`
	Encodings         []string           `mapstructure:"encodings" yaml:"encodings"`
	CachePolicy       string             `mapstructure:"cachePolicy" yaml:"cachePolicy"`
	RootFiles         string             `mapstructure:"rootFiles" yaml:"rootFiles"`
	UncategorizedName string             `mapstructure:"uncategorizedName" yaml:"uncategorizedName"`
	IDSeparator       string             `mapstructure:"idSeparator" yaml:"idSeparator"`
	WorkerCount       int                `mapstructure:"workerCount" yaml:"workerCount"`
	AltNoun           string             `mapstructure:"altNoun" yaml:"altNoun"`
	AlbumAliases      map[string]string  `mapstructure:"albumAliases" yaml:"albumAliases"`
	ModelReplacements []ModelReplacement `mapstructure:"modelReplacements" yaml:"modelReplacements"`
	ASCIIAssetPaths   bool               `mapstructure:"asciiAssetPaths" yaml:"asciiAssetPaths"`
	DetectSimilar     bool               `mapstructure:"detectSimilar" yaml:"detectSimilar"`
}

type ReconcilerConfig struct {
	JunkFiles      []string `mapstructure:"junkFiles" yaml:"junkFiles"`
	PruneEmptyDirs bool     `mapstructure:"pruneEmptyDirs" yaml:"pruneEmptyDirs"`
}

type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler" yaml:"reconciler"`
}

// setDefaults 注册所有配置项的默认值。
// 所有 key 都必须在这里出现一次，否则 AutomaticEnv 无法覆盖它。
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.path", "")

	v.SetDefault("pipeline.sourcePath", "photos")
	v.SetDefault("pipeline.thumbPath", "public/images/thumbs")
	v.SetDefault("pipeline.fullPath", "public/images/full")
	v.SetDefault("pipeline.thumbWebPrefix", "/images/thumbs")
	v.SetDefault("pipeline.fullWebPrefix", "/images/full")
	v.SetDefault("pipeline.manifestPath", "src/data/photos.json")
	v.SetDefault("pipeline.thumbWidth", 800)
	v.SetDefault("pipeline.fullWidth", 2400)
	v.SetDefault("pipeline.thumbQuality", 75)
	v.SetDefault("pipeline.fullQuality", 85)
	v.SetDefault("pipeline.encodings", []string{EncodingJPEG, EncodingWebP})
	v.SetDefault("pipeline.cachePolicy", CachePolicyFreshness)
	v.SetDefault("pipeline.rootFiles", RootFilesSkip)
	v.SetDefault("pipeline.uncategorizedName", "uncategorized")
	v.SetDefault("pipeline.idSeparator", "__")
	v.SetDefault("pipeline.workerCount", 1)
	v.SetDefault("pipeline.altNoun", "photograph")
	v.SetDefault("pipeline.albumAliases", map[string]string{
		"nyc": "New York City",
		"sf":  "San Francisco",
		"la":  "Los Angeles",
	})
	v.SetDefault("pipeline.modelReplacements", []map[string]any{
		{"from": "NIKON CORPORATION ", "to": ""},
		{"from": "NIKON ", "to": ""},
		{"from": "_2", "to": " II"},
		{"from": "_3", "to": " III"},
	})
	v.SetDefault("pipeline.asciiAssetPaths", false)
	v.SetDefault("pipeline.detectSimilar", false)

	v.SetDefault("reconciler.junkFiles", []string{".DS_Store", "Thumbs.db", "desktop.ini"})
	v.SetDefault("reconciler.pruneEmptyDirs", true)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default 返回只包含默认值的配置，不读取文件和环境变量。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	// 默认值总能解析成功
	cfg, _ := decode(v)
	return cfg
}

// Load 加载配置。path 可以是一个具体的文件，也可以是包含 config.yaml 的目录；
// 为空时在当前目录查找。目录下找不到配置文件时使用默认值。
func Load(path string) (*Config, error) {
	v := newViper()

	explicitFile := false
	if path != "" {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			v.SetConfigFile(path)
			explicitFile = true
		}
	}
	if !explicitFile {
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	for i, enc := range cfg.Pipeline.Encodings {
		cfg.Pipeline.Encodings[i] = strings.ToLower(strings.TrimSpace(enc))
	}
	return &cfg, nil
}

// Validate 检查配置的取值是否合法。
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.SourcePath == "" || p.ThumbPath == "" || p.FullPath == "" || p.ManifestPath == "" {
		return errors.New("sourcePath、thumbPath、fullPath、manifestPath 均不能为空")
	}
	if filepath.Clean(p.ThumbPath) == filepath.Clean(p.FullPath) {
		return fmt.Errorf("thumbPath 和 fullPath 不能是同一个目录: %s", p.ThumbPath)
	}
	if path.Clean(p.ThumbWebPrefix) == path.Clean(p.FullWebPrefix) {
		return fmt.Errorf("thumbWebPrefix 和 fullWebPrefix 不能相同: %s", p.ThumbWebPrefix)
	}
	if p.ThumbWidth <= 0 || p.FullWidth <= 0 {
		return fmt.Errorf("无效的输出宽度: thumb=%d full=%d", p.ThumbWidth, p.FullWidth)
	}
	for _, q := range []int{p.ThumbQuality, p.FullQuality} {
		if q < 1 || q > 100 {
			return fmt.Errorf("无效的编码质量: %d (应在 1-100 之间)", q)
		}
	}
	if len(p.Encodings) == 0 || !slices.Contains(p.Encodings, EncodingJPEG) {
		return fmt.Errorf("encodings 必须包含 %q", EncodingJPEG)
	}
	seen := make(map[string]struct{}, len(p.Encodings))
	for _, enc := range p.Encodings {
		switch enc {
		case EncodingJPEG, EncodingPNG, EncodingWebP:
		default:
			return fmt.Errorf("不支持的编码格式: %q", enc)
		}
		if _, dup := seen[enc]; dup {
			return fmt.Errorf("重复的编码格式: %q", enc)
		}
		seen[enc] = struct{}{}
	}
	switch p.CachePolicy {
	case CachePolicyFreshness, CachePolicyExistence:
	default:
		return fmt.Errorf("无效的缓存策略: %q", p.CachePolicy)
	}
	switch p.RootFiles {
	case RootFilesSkip, RootFilesUncategorized:
	default:
		return fmt.Errorf("无效的根目录文件策略: %q", p.RootFiles)
	}
	if p.RootFiles == RootFilesUncategorized && p.UncategorizedName == "" {
		return errors.New("rootFiles 为 uncategorized 时 uncategorizedName 不能为空")
	}
	if p.IDSeparator == "" || strings.ContainsAny(p.IDSeparator, `/\`) {
		return fmt.Errorf("无效的 ID 分隔符: %q", p.IDSeparator)
	}
	return nil
}

// WriteDefault 将默认配置以 YAML 格式写入 path，已存在的文件不会被覆盖。
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("配置文件已存在: %s", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("序列化配置为YAML失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建目录 %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
