package hparams

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source 是超参数来源。Overlay 只覆盖来源中出现的字段。
type Source interface {
	Overlay(h *HParams) error
}

// Blob 是检查点中内嵌的 JSON 字符串。
type Blob string

// Overlay 实现 Source。
func (b Blob) Overlay(h *HParams) error {
	if err := json.Unmarshal([]byte(b), h); err != nil {
		return fmt.Errorf("hparams: 解析内嵌 JSON 失败: %w", err)
	}
	return nil
}

// File 是外部超参数文件路径，支持 .json、.yaml、.yml。
type File string

// Overlay 实现 Source。
func (f File) Overlay(h *HParams) error {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return fmt.Errorf("hparams: 读取 %s 失败: %w", string(f), err)
	}

	switch strings.ToLower(filepath.Ext(string(f))) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, h); err != nil {
			return fmt.Errorf("hparams: 解析 %s 失败: %w", string(f), err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, h); err != nil {
			return fmt.Errorf("hparams: 解析 %s 失败: %w", string(f), err)
		}
	default:
		return fmt.Errorf("hparams: 不支持的文件类型: %s", string(f))
	}
	return nil
}

// Map 是结构化的键值来源，键名与 JSON 字段名一致。
type Map map[string]any

// Overlay 实现 Source。
func (m Map) Overlay(h *HParams) error {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return fmt.Errorf("hparams: 序列化 map 失败: %w", err)
	}
	if err := json.Unmarshal(data, h); err != nil {
		return fmt.Errorf("hparams: 解析 map 失败: %w", err)
	}
	return nil
}

type value struct{ v HParams }

// Value 直接使用一份完整的超参数。
func Value(h HParams) Source { return value{v: h} }

func (s value) Overlay(h *HParams) error {
	*h = s.v
	return nil
}
