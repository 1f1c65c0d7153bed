package model

import "time"

// OpportunityType は機会の種別を表す。
type OpportunityType string

const (
	OpportunityTypeProject     OpportunityType = "project"
	OpportunityTypePartnership OpportunityType = "partnership"
	OpportunityTypeFunding     OpportunityType = "funding"
	OpportunityTypeEducation   OpportunityType = "education"
)

// Valid は定義済みの種別かどうかを返す。
func (t OpportunityType) Valid() bool {
	switch t {
	case OpportunityTypeProject, OpportunityTypePartnership, OpportunityTypeFunding, OpportunityTypeEducation:
		return true
	default:
		return false
	}
}

// OpportunityStatus は機会の公開状態を表す。
type OpportunityStatus string

const (
	// OpportunityStatusActive は公開中で応募可能な状態。
	OpportunityStatusActive OpportunityStatus = "active"
	// OpportunityStatusClosed は締切済み。
	OpportunityStatusClosed OpportunityStatus = "closed"
	// OpportunityStatusDraft は未公開の下書き。取り込みジョブが作成する機会もこの状態から始まる。
	OpportunityStatusDraft OpportunityStatus = "draft"
)

// Opportunity はユーザーが閲覧・応募できる募集案件を表す。
type Opportunity struct {
	ID           string
	Title        string
	Description  string // サニタイズ済みHTML
	Organization string
	Country      string
	Sector       string
	Type         OpportunityType
	Status       OpportunityStatus
	ImageURL     string
	ContactEmail string
	Deadline     *time.Time
	CreatedBy    string

	// パートナーフィードから取り込んだ場合のみ設定される
	SourceID     string
	ExternalGUID string
	ExternalLink string
	ContentHash  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplicationStatus は応募の審査状態を表す。
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Valid は定義済みの審査状態かどうかを返す。
func (s ApplicationStatus) Valid() bool {
	return s == ApplicationStatusPending || s == ApplicationStatusAccepted || s == ApplicationStatusRejected
}

// Application は機会への応募を表す。
// (opportunity_id, user_id) は一意。
type Application struct {
	ID            string
	OpportunityID string
	UserID        string
	Message       string
	Status        ApplicationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OpportunityImage は機会に添付された画像バイナリ。
type OpportunityImage struct {
	ID            string
	OpportunityID string
	Filename      string
	MimeType      string
	Width         int
	Height        int
	Data          []byte
	CreatedAt     time.Time
}

// OpportunityFilter は機会一覧の絞り込み条件。
// 空文字の項目は条件として扱わない。
type OpportunityFilter struct {
	Country string
	Sector  string
	Type    OpportunityType
	Search  string
	// Statusが空の場合は公開中の機会のみを対象とする
	Status OpportunityStatus
	Limit  int
	Offset int
}
