package importer

import (
	"fmt"
	"time"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/retry"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop はフェッチ停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	initialBackoff        = 30 * time.Minute
	maxBackoff            = 12 * time.Hour
	parseFailureThreshold = 10
	defaultIntervalMin    = 60
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410, statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429, statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づく遅延を返す。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	consecutiveErrors = min(max(consecutiveErrors, 0), 16)
	delays := retry.Exponential(consecutiveErrors+2, initialBackoff, maxBackoff, 2).Delays()
	return delays[len(delays)-1]
}

// ApplyStop はソースのフェッチを停止し、理由を記録する。
func ApplyStop(src *model.OpportunitySource, reason string) {
	src.FetchStatus = model.FetchStatusStopped
	src.ErrorMessage = reason
	src.UpdatedAt = time.Now()
}

// ApplyBackoff は連続エラー回数を増やし、次回フェッチ時刻を後ろにずらす。
func ApplyBackoff(src *model.OpportunitySource, reason string) {
	src.ConsecutiveErrors++
	src.ErrorMessage = reason
	src.NextFetchAt = time.Now().Add(CalculateBackoff(src.ConsecutiveErrors - 1))
	src.UpdatedAt = time.Now()
}

// ApplySuccess はエラー状態をリセットし、ソースのフェッチ間隔で次回時刻を設定する。
func ApplySuccess(src *model.OpportunitySource) {
	interval := src.FetchIntervalMinutes
	if interval <= 0 {
		interval = defaultIntervalMin
	}
	src.ConsecutiveErrors = 0
	src.ErrorMessage = ""
	src.NextFetchAt = time.Now().Add(time.Duration(interval) * time.Minute)
	src.UpdatedAt = time.Now()
}

// ApplyParseFailure はパース失敗を数え、閾値に達したらフェッチを停止する。
// 次回フェッチ時刻は通常の間隔で進める。
func ApplyParseFailure(src *model.OpportunitySource, reason string) {
	errors := src.ConsecutiveErrors + 1
	ApplySuccess(src)
	src.ConsecutiveErrors = errors
	src.ErrorMessage = fmt.Sprintf("parse failed (%d consecutive): %s", errors, reason)

	if src.ConsecutiveErrors >= parseFailureThreshold {
		src.FetchStatus = model.FetchStatusStopped
		src.ErrorMessage = fmt.Sprintf("stopped after %d consecutive parse failures: %s", errors, reason)
	}
}
