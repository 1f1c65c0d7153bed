package model

import "time"

// OpportunitySource はパートナー団体が公開するRSS/Atomフィードを表す。
// 取り込みジョブが定期的にフェッチし、記事を下書きの機会として登録する。
type OpportunitySource struct {
	ID                   string
	SiteURL              string
	FeedURL              string
	Title                string
	Organization         string
	Country              string
	Sector               string
	Type                 OpportunityType
	ETag                 string
	LastModified         string
	FetchStatus          FetchStatus
	ConsecutiveErrors    int
	ErrorMessage         string
	FetchIntervalMinutes int
	NextFetchAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FetchStatus はソースのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// ParsedEntry はフィードからパースした1件のエントリ。
type ParsedEntry struct {
	GuidOrID    string
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
}
