package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// watch 通道缓冲大小，写满即丢弃旧事件之外的新事件
const watchBuffer = 4

// loader Loader 的 viper 实现（非导出）
type loader struct {
	v      *viper.Viper
	opts   *loaderOptions
	logger *zap.Logger

	mu       sync.Mutex
	loaded   bool
	watching bool
	watchers []chan Event
}

func newLoader(opts *loaderOptions, logger *zap.Logger) *loader {
	return &loader{
		v:      viper.New(),
		opts:   opts,
		logger: logger,
	}
}

// Load 从文件与环境变量加载配置
func (l *loader) Load(ctx context.Context) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.SetConfigName(l.opts.name)
	l.v.SetConfigType(l.opts.fileType)
	for _, path := range l.opts.paths {
		l.v.AddConfigPath(path)
	}

	// 环境变量优先级最高，MUSEGUARD_REDIS_ADDR → redis.addr
	l.v.SetEnvPrefix(l.opts.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", l.opts.name, err)
		}
		if l.logger != nil {
			l.logger.Info("no config file found, using env and defaults",
				zap.String("name", l.opts.name))
		}
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	l.loaded = true

	if l.logger != nil {
		l.logger.Info("config loaded",
			zap.String("file", l.v.ConfigFileUsed()),
			zap.String("mode", cfg.Mode),
			zap.Int("providers", len(cfg.Providers)))
	}
	return cfg, nil
}

func (l *loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Watch 订阅配置文件变更
func (l *loader) Watch(ctx context.Context) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return nil, ErrNotLoaded
	}

	ch := make(chan Event, watchBuffer)
	l.watchers = append(l.watchers, ch)

	if !l.watching {
		l.watching = true
		l.v.OnConfigChange(func(e fsnotify.Event) {
			l.notify(e.Name)
		})
		l.v.WatchConfig()
	}

	go func() {
		<-ctx.Done()
		l.removeWatcher(ch)
	}()

	return ch, nil
}

// notify 重新加载配置并推送给所有订阅者
func (l *loader) notify(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.unmarshal()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		}
		return
	}

	ev := Event{Config: cfg, Path: path, Timestamp: time.Now()}
	for _, ch := range l.watchers {
		select {
		case ch <- ev:
		default:
			if l.logger != nil {
				l.logger.Warn("config watch channel full, event dropped")
			}
		}
	}

	if l.logger != nil {
		l.logger.Info("config reloaded", zap.String("path", path))
	}
}

func (l *loader) removeWatcher(ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.watchers {
		if c == ch {
			l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
			close(c)
			return
		}
	}
}
