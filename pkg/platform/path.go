package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizePath 把路径规范化为绝对路径，相对路径以 base 为基准
// base 为空时使用进程当前目录，不解析符号链接
func NormalizePath(base, path string) (string, error) {
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "/", "\\")
	}
	if !filepath.IsAbs(path) {
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path), nil
}

// CanonicalPath 解析符号链接后返回真实的绝对路径
func CanonicalPath(base, path string) (string, error) {
	abs, err := NormalizePath(base, path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Getwd 返回进程当前目录的规范形式
func Getwd() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(wd); err == nil {
		return resolved, nil
	}
	return filepath.Clean(wd), nil
}

// IsAbsolute 判断是否为绝对路径
func IsAbsolute(path string) bool {
	return filepath.IsAbs(path)
}

// JoinPath 连接路径
func JoinPath(elem ...string) string {
	return filepath.Join(elem...)
}

// NormalizeNewlines 在Windows上把管道输出的 \r\n 统一成 \n
func NormalizeNewlines(s string) string {
	if runtime.GOOS != "windows" {
		return s
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}
