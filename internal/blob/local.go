// Package blob 本地磁盘媒体存储，文件名取内容的 blake2b 摘要
package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrTooLarge 超过 maxBytes
var ErrTooLarge = errors.New("file too large")

// LocalStore 同样内容只保存一份
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalStore 确保目录存在；maxBytes <= 0 表示不限制
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Put 边写临时文件边计算摘要，完成后重命名为 <digest><ext>
func (s *LocalStore) Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return "", err
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return "", err
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, filename, s.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := hex.EncodeToString(h.Sum(nil)) + extension(filename)
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + name, nil
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
