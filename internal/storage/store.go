package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStorageKeyInvalid 表示对象 key 为空或越出存储根目录。
var ErrStorageKeyInvalid = errors.New("invalid storage key")

// Store 描述图片对象存储：按 key 写入、删除以及生成公开访问地址。
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// LocalStore 将对象保存在本地目录，并通过静态路由对外提供。
type LocalStore struct {
	root    string
	urlPath string
	logger  *zap.Logger
}

// NewLocalStore 创建以 root 为根目录的本地存储，urlPath 为静态文件挂载路径。
func NewLocalStore(root, urlPath string, logger *zap.Logger) (*LocalStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %q: %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", absRoot, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{
		root:    absRoot,
		urlPath: "/" + strings.Trim(urlPath, "/"),
		logger:  logger,
	}, nil
}

// Root 返回存储根目录的绝对路径。
func (s *LocalStore) Root() string {
	return s.root
}

// NewKey 生成形如 20240131/<uuid>.jpg 的对象 key。
func NewKey(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(time.Now().Format("20060102"), uuid.NewString()+ext)
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, clean, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %q: %w", clean, err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", clean, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("write %q: %w", clean, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("close %q: %w", clean, err)
	}

	s.logger.Debug("stored object", zap.String("key", clean))
	return clean, nil
}

// Delete 删除对象；对象不存在视为成功。
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, clean, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete %q: %w", clean, err)
	}
	s.logger.Debug("deleted object", zap.String("key", clean))
	return nil
}

func (s *LocalStore) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return s.urlPath + "/" + strings.TrimPrefix(KeyFromURL(s.urlPath, key), "/")
}

// KeyFromURL 将公开地址还原为对象 key，便于兼容历史上直接保存 URL 的记录。
func KeyFromURL(urlPath, value string) string {
	trimmed := strings.TrimSpace(value)
	prefix := "/" + strings.Trim(urlPath, "/") + "/"
	if strings.HasPrefix(trimmed, prefix) {
		return strings.TrimPrefix(trimmed, prefix)
	}
	return strings.TrimPrefix(trimmed, "/")
}

func (s *LocalStore) resolve(key string) (string, string, error) {
	clean := KeyFromURL(s.urlPath, key)
	if clean == "" {
		return "", "", ErrStorageKeyInvalid
	}
	clean = path.Clean(filepath.ToSlash(clean))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: %q", ErrStorageKeyInvalid, key)
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(clean))
	if fullPath != s.root && !strings.HasPrefix(fullPath, s.root+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%w: %q", ErrStorageKeyInvalid, key)
	}
	return fullPath, clean, nil
}
