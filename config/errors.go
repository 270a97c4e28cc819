package config

import "errors"

// 错误定义
var (
	// ErrNotLoaded Watch 必须在 Load 之后调用
	ErrNotLoaded = errors.New("config: not loaded")
)
