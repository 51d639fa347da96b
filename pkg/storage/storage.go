package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrSourceNotFound 语料来源（目录或存储桶）不存在
var ErrSourceNotFound = errors.New("corpus source not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	Name string // 文件名（不含目录或前缀）
	Size int64  // 文件大小(字节)
	Path string // 内部存储路径(实现相关)
}

// Source PDF语料来源接口
// 本地目录与MinIO前缀都实现该接口，加载器只依赖文件名与本地路径
type Source interface {
	// List 列出来源中的所有文件，按文件名字典序排列
	List(ctx context.Context) ([]FileInfo, error)

	// Fetch 返回文件的本地路径，cleanup 用于释放临时文件
	Fetch(ctx context.Context, file FileInfo) (localPath string, cleanup func(), err error)

	// Put 写入一个文件，用于向来源上传语料
	Put(ctx context.Context, name string, r io.Reader, size int64) (FileInfo, error)

	// Location 返回来源的可读描述，用于日志
	Location() string
}

// Config 来源配置
type Config struct {
	Type  string // local 或 minio
	Local LocalConfig
	Minio MinioConfig
}

// NewSource 根据配置创建语料来源
func NewSource(cfg Config) (Source, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalSource(cfg.Local), nil
	case "minio":
		return NewMinioSource(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}

// HasExt 判断文件名扩展名，忽略大小写
func HasExt(name, ext string) bool {
	return strings.EqualFold(path.Ext(name), ext)
}

func noop() {}
