package jsonfile

import (
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/manifest"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store 是 manifest.Store 接口的 JSON 文件实现。
type Store struct {
	path string
}

// 确保 Store 实现了 manifest.Store 接口 (编译时检查)
var _ manifest.Store = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Location() string {
	return s.path
}

func (s *Store) Load() (*models.Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", manifest.ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}

	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析清单 %s 失败: %w", s.path, err)
	}
	return &m, nil
}

// Save 以两个空格缩进写出清单，先写临时文件再重命名，避免中断时留下半个文件。
func (s *Store) Save(m *models.Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("无法创建清单目录: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("写入清单失败: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换清单失败: %w", err)
	}
	return nil
}

// Encode 返回清单的规范化 JSON 表示。
// 不转义 HTML 字符，说明文字里的 & < > 保持原样，方便手工编辑。
func Encode(m *models.Manifest) ([]byte, error) {
	if m.Photos == nil {
		m = &models.Manifest{Photos: []models.PhotoRecord{}}
	}
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("序列化清单失败: %w", err)
	}
	return buf.Bytes(), nil
}
