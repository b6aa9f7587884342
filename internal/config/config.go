package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/melgen/internal/logger"
)

// Config 是 melgen 的顶层配置结构。
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig 声学模型配置。
type ModelConfig struct {
	Checkpoint string `yaml:"checkpoint"`
	// Hparams 外部超参数文件（.json/.yaml），检查点内嵌超参数时被忽略。
	Hparams string `yaml:"hparams"`
	// Device 请求的设备，如 cpu、cuda、cuda:1。加速器不可用时回退到 cpu。
	Device string `yaml:"device"`
	// StepsPerSymbol 每个输入符号允许的最大解码步数。
	StepsPerSymbol float64 `yaml:"steps_per_symbol"`
	GateThreshold  float64 `yaml:"gate_threshold"`
}

// RuntimeConfig ONNX Runtime 配置。
type RuntimeConfig struct {
	// LibraryPath onnxruntime 动态库路径，为空时自动查找。
	LibraryPath string `yaml:"library_path"`
	NumThreads  int    `yaml:"num_threads"`
}

// CatalogConfig 检查点目录配置。
type CatalogConfig struct {
	// Disabled 为 true 时不记录检查点和推理。
	Disabled bool   `yaml:"disabled"`
	DBPath   string `yaml:"db_path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Logger 转换为 logger.Config。
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${MELGEN_CHECKPOINT}
	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回只含默认值的配置，用于未提供配置文件的情况。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Model.Device == "" {
		cfg.Model.Device = "cuda"
	}
	if cfg.Model.StepsPerSymbol == 0 {
		cfg.Model.StepsPerSymbol = 10
	}
	if cfg.Model.GateThreshold == 0 {
		cfg.Model.GateThreshold = 0.5
	}
	if cfg.Runtime.NumThreads == 0 {
		cfg.Runtime.NumThreads = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Catalog.DBPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Catalog.DBPath = filepath.Join(home, ".melgen", "catalog.db")
		} else {
			cfg.Catalog.DBPath = "./.melgen-data/catalog.db"
		}
	}

	// Go 不会自动展开 ~，需要手动替换为用户主目录
	cfg.Model.Checkpoint = expandHome(cfg.Model.Checkpoint)
	cfg.Model.Hparams = expandHome(cfg.Model.Hparams)
	cfg.Runtime.LibraryPath = expandHome(cfg.Runtime.LibraryPath)
	cfg.Catalog.DBPath = expandHome(cfg.Catalog.DBPath)
	cfg.Log.File = expandHome(cfg.Log.File)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
