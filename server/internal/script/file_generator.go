package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"livecast/server/internal/model"
)

// Document 预写剧本的 YAML 格式
type Document struct {
	Topic    string             `yaml:"topic"`
	Language string             `yaml:"language"`
	Lines    []model.ScriptLine `yaml:"lines"`
}

// FileGenerator 从目录（或单个文件）读取预写剧本。
// 目录里有多个剧本时优先选 topic 与请求一致的，否则按文件名取第一个。
type FileGenerator struct {
	Path string
}

// Generate 读取剧本
func (g FileGenerator) Generate(ctx context.Context, req Request) ([]model.ScriptLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := scriptFiles(g.Path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no script files under %s", g.Path)
	}

	var chosen *Document
	for _, f := range files {
		doc, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		if chosen == nil {
			chosen = doc
		}
		if strings.EqualFold(strings.TrimSpace(doc.Topic), strings.TrimSpace(req.Topic)) {
			chosen = doc
			break
		}
	}
	minLines, maxLines := req.bounds()
	return Finalize(chosen.Lines, minLines, maxLines)
}

// LoadFile 解析一个 YAML 剧本文件
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse script file %s: %w", path, err)
	}
	return &doc, nil
}

func scriptFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat scripts path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
