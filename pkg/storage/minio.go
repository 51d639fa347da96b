package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioSource MinIO前缀来源
type MinioSource struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
	prefix     string        // 对象前缀
}

// MinioConfig MinIO来源配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
	Prefix    string // 对象前缀，例如 pdfs/
}

// NewMinioSource 创建MinIO来源实例
func NewMinioSource(cfg MinioConfig) (*MinioSource, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	return &MinioSource{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     cfg.Prefix,
	}, nil
}

// List 列出前缀下的对象，桶不存在时返回 ErrSourceNotFound
func (s *MinioSource) List(ctx context.Context) ([]FileInfo, error) {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Location())
	}

	var files []FileInfo
	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %v", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		files = append(files, FileInfo{
			Name: path.Base(object.Key),
			Size: object.Size,
			Path: object.Key,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Fetch 下载对象到临时文件
func (s *MinioSource) Fetch(ctx context.Context, file FileInfo) (string, func(), error) {
	tmp, err := os.CreateTemp("", "advisor-src-*"+path.Ext(file.Name))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	cleanup := func() { os.Remove(tmpPath) }
	if err := s.client.FGetObject(ctx, s.bucketName, file.Path, tmpPath, minio.GetObjectOptions{}); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to download object %s: %v", file.Path, err)
	}
	return tmpPath, cleanup, nil
}

// Put 上传对象，桶不存在时自动创建
func (s *MinioSource) Put(ctx context.Context, name string, r io.Reader, size int64) (FileInfo, error) {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return FileInfo{}, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	objectName := s.prefix + path.Base(name)
	info, err := s.client.PutObject(ctx, s.bucketName, objectName, r, size,
		minio.PutObjectOptions{ContentType: contentType(name)})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %v", err)
	}

	return FileInfo{Name: path.Base(name), Size: info.Size, Path: objectName}, nil
}

// Location 返回 bucket/prefix 描述
func (s *MinioSource) Location() string {
	return fmt.Sprintf("minio://%s/%s", s.bucketName, s.prefix)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
