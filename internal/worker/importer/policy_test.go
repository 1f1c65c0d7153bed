package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/africashands/platform/internal/model"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FetchResult
	}{
		{200, FetchResultOK},
		{304, FetchResultNotModified},
		{401, FetchResultStop},
		{403, FetchResultStop},
		{404, FetchResultStop},
		{410, FetchResultStop},
		{429, FetchResultBackoff},
		{500, FetchResultBackoff},
		{503, FetchResultBackoff},
		{302, FetchResultUnknown},
		{418, FetchResultUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{-1, 30 * time.Minute},
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{100, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestApplyBackoff(t *testing.T) {
	src := &model.OpportunitySource{ConsecutiveErrors: 1, FetchStatus: model.FetchStatusActive}
	before := time.Now()
	ApplyBackoff(src, "HTTP 503")

	if src.ConsecutiveErrors != 2 || src.ErrorMessage != "HTTP 503" {
		t.Errorf("unexpected state %+v", src)
	}
	if d := src.NextFetchAt.Sub(before); d < time.Hour || d > time.Hour+time.Minute {
		t.Errorf("expected about 1h backoff, got %v", d)
	}
	if src.FetchStatus != model.FetchStatusActive {
		t.Error("backoff must not stop the source")
	}
}

func TestApplySuccess(t *testing.T) {
	src := &model.OpportunitySource{ConsecutiveErrors: 3, ErrorMessage: "x", FetchIntervalMinutes: 30}
	before := time.Now()
	ApplySuccess(src)

	if src.ConsecutiveErrors != 0 || src.ErrorMessage != "" {
		t.Errorf("expected reset, got %+v", src)
	}
	if d := src.NextFetchAt.Sub(before); d < 30*time.Minute || d > 31*time.Minute {
		t.Errorf("expected 30m interval, got %v", d)
	}

	noInterval := &model.OpportunitySource{}
	ApplySuccess(noInterval)
	if d := time.Until(noInterval.NextFetchAt); d < 59*time.Minute {
		t.Errorf("expected default 60m interval, got %v", d)
	}
}

func TestApplyStop(t *testing.T) {
	src := &model.OpportunitySource{FetchStatus: model.FetchStatusActive}
	ApplyStop(src, "HTTP 410")
	if src.FetchStatus != model.FetchStatusStopped || src.ErrorMessage != "HTTP 410" {
		t.Errorf("unexpected state %+v", src)
	}
}

func TestApplyParseFailure(t *testing.T) {
	src := &model.OpportunitySource{FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 2}
	ApplyParseFailure(src, "bad xml")
	if src.ConsecutiveErrors != 3 || src.FetchStatus != model.FetchStatusActive {
		t.Errorf("unexpected state %+v", src)
	}
	if !strings.Contains(src.ErrorMessage, "bad xml") {
		t.Errorf("expected reason in message, got %q", src.ErrorMessage)
	}

	src.ConsecutiveErrors = parseFailureThreshold - 1
	ApplyParseFailure(src, "bad xml")
	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("expected stop at threshold, got %+v", src)
	}
}
