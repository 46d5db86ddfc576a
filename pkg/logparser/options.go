package logparser

import (
	"io"

	"github.com/liliang-cn/logparser/pkg/search"
)

// SearchOption 搜索选项
type SearchOption func(*searchOptions)

type searchOptions struct {
	user       string
	dir        string
	parallel   int
	ignoreCase bool
	execute    bool
	verbose    bool
	output     io.Writer
	progress   search.ProgressFunc
}

// WithUser 设置远程用户
func WithUser(user string) SearchOption {
	return func(o *searchOptions) {
		o.user = user
	}
}

// WithDir 设置远程日志目录
func WithDir(dir string) SearchOption {
	return func(o *searchOptions) {
		o.dir = dir
	}
}

// WithParallel 设置并发数
func WithParallel(n int) SearchOption {
	return func(o *searchOptions) {
		o.parallel = n
	}
}

// WithIgnoreCase 忽略大小写
func WithIgnoreCase() SearchOption {
	return func(o *searchOptions) {
		o.ignoreCase = true
	}
}

// WithExecute 读取文件内容；不设置时只列出文件
func WithExecute() SearchOption {
	return func(o *searchOptions) {
		o.execute = true
	}
}

// WithVerbose 输出命令和每一条匹配
func WithVerbose() SearchOption {
	return func(o *searchOptions) {
		o.verbose = true
	}
}

// WithOutput 设置进度输出，默认丢弃
func WithOutput(w io.Writer) SearchOption {
	return func(o *searchOptions) {
		o.output = w
	}
}

// WithProgress 设置进度回调
func WithProgress(fn search.ProgressFunc) SearchOption {
	return func(o *searchOptions) {
		o.progress = fn
	}
}
