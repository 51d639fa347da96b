package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// LocalSource 本地目录来源
type LocalSource struct {
	basePath string // 目录路径
}

// LocalConfig 本地来源配置
type LocalConfig struct {
	Path string // 本地目录路径
}

// NewLocalSource 创建本地目录来源，目录不存在时不报错，由 List 返回 ErrSourceNotFound
func NewLocalSource(cfg LocalConfig) *LocalSource {
	return &LocalSource{basePath: cfg.Path}
}

// List 列出目录下的普通文件
func (s *LocalSource) List(ctx context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.basePath)
		}
		return nil, fmt.Errorf("failed to read directory: %v", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name: entry.Name(),
			Size: info.Size(),
			Path: filepath.Join(s.basePath, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Fetch 本地文件直接返回原路径
func (s *LocalSource) Fetch(ctx context.Context, file FileInfo) (string, func(), error) {
	if _, err := os.Stat(file.Path); err != nil {
		return "", noop, fmt.Errorf("failed to stat file: %v", err)
	}
	return file.Path, noop, nil
}

// Put 保存文件到目录
func (s *LocalSource) Put(ctx context.Context, name string, r io.Reader, size int64) (FileInfo, error) {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %v", err)
	}

	target := filepath.Join(s.basePath, filepath.Base(name))
	f, err := os.Create(target)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %v", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	return FileInfo{Name: filepath.Base(name), Size: written, Path: target}, nil
}

// Location 返回目录路径
func (s *LocalSource) Location() string {
	return s.basePath
}
