package config

import "go.uber.org/zap"

// Option 组件初始化选项函数
type Option func(*loaderOptions)

// loaderOptions 加载器选项（内部使用，小写）
type loaderOptions struct {
	name      string
	fileType  string
	paths     []string
	envPrefix string
	logger    *zap.Logger
}

func defaultOptions() *loaderOptions {
	return &loaderOptions{
		name:      "museguard",
		fileType:  "yaml",
		paths:     []string{"."},
		envPrefix: "MUSEGUARD",
	}
}

// WithName 设置配置文件名（不含扩展名，默认: "museguard"）
func WithName(name string) Option {
	return func(o *loaderOptions) {
		o.name = name
	}
}

// WithPaths 设置配置文件搜索路径（默认: 当前目录）
func WithPaths(paths ...string) Option {
	return func(o *loaderOptions) {
		o.paths = paths
	}
}

// WithEnvPrefix 设置环境变量前缀（默认: "MUSEGUARD"）
func WithEnvPrefix(prefix string) Option {
	return func(o *loaderOptions) {
		o.envPrefix = prefix
	}
}

// WithLogger 设置 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *loaderOptions) {
		o.logger = logger
	}
}
