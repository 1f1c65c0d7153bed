package metrics

import "time"

// Nop は何も記録しない実装。メトリクスを使用しない構成とテストで使用する。
type Nop struct{}

func (Nop) RecordProfileResolution(string)       {}
func (Nop) RecordProfileReadFailure(string)      {}
func (Nop) RecordProfileWriteFailure(string)     {}
func (Nop) RecordRoleOverride()                  {}
func (Nop) RecordCallbackOutcome(string, string) {}
func (Nop) RecordAuthEvent(string)               {}
func (Nop) RecordFetchSuccess(string)            {}
func (Nop) RecordFetchFailure(string, string)    {}
func (Nop) RecordParseFailure(string)            {}
func (Nop) RecordHTTPStatus(int)                 {}
func (Nop) RecordFetchLatency(time.Duration)     {}
func (Nop) RecordOpportunitiesUpserted(int)      {}

var (
	_ ProfileRecorder  = Nop{}
	_ CallbackRecorder = Nop{}
	_ AuthRecorder     = Nop{}
	_ ImportRecorder   = Nop{}
)
