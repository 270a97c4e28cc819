// Package platform 定义外部音乐平台工作器的能力契约与领域类型。
//
// 每个提供方（spotify、apple、youtube、musicbrainz …）实现一个
// Worker：提供搜索 / 拉取 / 同步操作，并自带限流配置。编排器只
// 依赖该契约，不关心各平台的 HTTP 细节——具体客户端、OAuth、
// 凭证加密都是外部协作者（见 TokenProvider / IdentityResolver）。
package platform

import (
	"context"
	"time"

	"github.com/museguard/museguard/checkpoint"
	"github.com/museguard/museguard/ratelimit"
)

// ========================================
// 领域类型 (Domain Types)
// ========================================

// Artist 平台侧艺人
type Artist struct {
	ID         string   `json:"id"`
	Platform   string   `json:"platform"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
	Followers  int64    `json:"followers,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	ProfileURL string   `json:"profile_url,omitempty"`
}

// Track 平台侧曲目
type Track struct {
	ID       string        `json:"id"`
	Platform string        `json:"platform"`
	Name     string        `json:"name"`
	ArtistID string        `json:"artist_id"`
	AlbumID  string        `json:"album_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Explicit bool          `json:"explicit,omitempty"`
}

// Album 平台侧专辑
type Album struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Name        string    `json:"name"`
	ArtistID    string    `json:"artist_id"`
	ReleaseDate time.Time `json:"release_date,omitempty"`
	TotalTracks int       `json:"total_tracks,omitempty"`
}

// SyncResult 一次同步作业的最终结果
type SyncResult struct {
	Platform       string        `json:"platform"`
	SyncType       string        `json:"sync_type"`
	TotalItems     int           `json:"total_items"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsFailed    int           `json:"items_failed"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`

	// CheckpointID 未完成时的续传检查点，空表示无需续传
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// ProgressEvent 同步进度事件。仅广播，不单独持久化。
type ProgressEvent struct {
	Platform            string     `json:"platform"`
	SyncRunID           string     `json:"sync_run_id"`
	Status              string     `json:"status"`
	TotalItems          int        `json:"total_items,omitempty"`
	ItemsProcessed      int        `json:"items_processed"`
	Errors              []string   `json:"errors,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// ProgressFunc 进度回调。
// 返回非 nil 错误（如 ErrRunCancelled）要求工作器在下一个批边界
// 停止——这是协作式取消的唯一通道，已在途的批总是跑完。
type ProgressFunc func(event ProgressEvent) error

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Worker 平台工作器能力契约，每个提供方实现一次。
// 所有方法都可能因限流 / 熔断 / 上游故障返回错误，由编排器与
// 批次执行器负责重试与隔离。
type Worker interface {
	// Platform 返回提供方标识（如 "spotify"）
	Platform() string

	// RateLimitConfig 返回该提供方的限流配置，
	// 编排器注册工作器时据此配置限流器
	RateLimitConfig() *ratelimit.Config

	// HealthCheck 探测上游可用性，nil 表示健康
	HealthCheck(ctx context.Context) error

	// SearchArtist 按名称搜索艺人
	SearchArtist(ctx context.Context, query string, limit int) ([]*Artist, error)

	// GetArtist 按平台 ID 拉取艺人
	GetArtist(ctx context.Context, id string) (*Artist, error)

	// GetArtistTopTracks 拉取艺人热门曲目
	GetArtistTopTracks(ctx context.Context, id string) ([]*Track, error)

	// GetArtistAlbums 拉取艺人专辑
	GetArtistAlbums(ctx context.Context, id string) ([]*Album, error)

	// GetRelatedArtists 拉取相关艺人
	GetRelatedArtists(ctx context.Context, id string) ([]*Artist, error)

	// SyncFull 全量同步。progress 每批调用一次；返回非 nil 时
	// 工作器在下一个批边界停止并返回当前进度。
	SyncFull(ctx context.Context, progress ProgressFunc) (*SyncResult, error)

	// SyncIncremental 增量同步。cp 非 nil 时从其 Position /
	// LastItemID 继续，已计数的条目不会重复处理。
	SyncIncremental(ctx context.Context, cp *checkpoint.Checkpoint, progress ProgressFunc) (*SyncResult, error)

	// Checkpoint 返回运行对应的检查点，无则返回 nil
	Checkpoint(ctx context.Context, runID string) (*checkpoint.Checkpoint, error)

	// SaveCheckpoint 持久化检查点
	SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ========================================
// 外部协作者 (Consumed Collaborators)
// ========================================

// IdentityResolver 跨平台身份归并服务（外部实现）。
// 同步过程中发现的艺人交由它归并到统一身份。
type IdentityResolver interface {
	ResolveAndAddArtist(ctx context.Context, artist *Artist) (canonicalID string, err error)
}

// TokenProvider 凭证提供方（外部实现），按平台提供已授权的访问令牌
type TokenProvider interface {
	AccessToken(ctx context.Context, platform string) (string, error)
}
