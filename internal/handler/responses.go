package handler

import (
	"time"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
)

type profileResponse struct {
	ID           string            `json:"id"`
	FullName     string            `json:"full_name"`
	Email        string            `json:"email"`
	Role         model.Role        `json:"role"`
	RoleSource   model.RoleSource  `json:"role_source,omitempty"`
	Country      string            `json:"country"`
	Sector       string            `json:"sector"`
	Organization string            `json:"organization"`
	AvatarURL    string            `json:"avatar_url"`
	Verified     bool              `json:"verified"`
	Preferences  model.Preferences `json:"preferences"`
}

func toProfileResponse(p *model.Profile) *profileResponse {
	if p == nil {
		return nil
	}
	return &profileResponse{
		ID:           p.ID,
		FullName:     p.FullName,
		Email:        p.Email,
		Role:         p.Role,
		RoleSource:   p.RoleSource,
		Country:      p.Country,
		Sector:       p.Sector,
		Organization: p.Organization,
		AvatarURL:    p.AvatarURL,
		Verified:     p.Verified,
		Preferences:  p.Preferences,
	}
}

func toProfileResponses(profiles []*model.Profile) []*profileResponse {
	out := make([]*profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p))
	}
	return out
}

type opportunityResponse struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	Organization string                  `json:"organization"`
	Country      string                  `json:"country"`
	Sector       string                  `json:"sector"`
	Type         model.OpportunityType   `json:"type"`
	Status       model.OpportunityStatus `json:"status"`
	ImageURL     string                  `json:"image_url,omitempty"`
	ContactEmail string                  `json:"contact_email,omitempty"`
	Deadline     *time.Time              `json:"deadline,omitempty"`
	ExternalLink string                  `json:"external_link,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func toOpportunityResponse(o *model.Opportunity) *opportunityResponse {
	return &opportunityResponse{
		ID:           o.ID,
		Title:        o.Title,
		Description:  o.Description,
		Organization: o.Organization,
		Country:      o.Country,
		Sector:       o.Sector,
		Type:         o.Type,
		Status:       o.Status,
		ImageURL:     o.ImageURL,
		ContactEmail: o.ContactEmail,
		Deadline:     o.Deadline,
		ExternalLink: o.ExternalLink,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type applicationResponse struct {
	ID            string                  `json:"id"`
	OpportunityID string                  `json:"opportunity_id"`
	UserID        string                  `json:"user_id"`
	Message       string                  `json:"message"`
	Status        model.ApplicationStatus `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`

	OpportunityTitle  string                  `json:"opportunity_title,omitempty"`
	Organization      string                  `json:"organization,omitempty"`
	OpportunityStatus model.OpportunityStatus `json:"opportunity_status,omitempty"`

	ApplicantName    string `json:"applicant_name,omitempty"`
	ApplicantEmail   string `json:"applicant_email,omitempty"`
	ApplicantCountry string `json:"applicant_country,omitempty"`
}

func toApplicationResponse(a *model.Application) applicationResponse {
	return applicationResponse{
		ID:            a.ID,
		OpportunityID: a.OpportunityID,
		UserID:        a.UserID,
		Message:       a.Message,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toMyApplicationsResponse(list []repository.ApplicationWithOpportunity) []applicationResponse {
	out := make([]applicationResponse, 0, len(list))
	for i := range list {
		resp := toApplicationResponse(&list[i].Application)
		resp.OpportunityTitle = list[i].OpportunityTitle
		resp.Organization = list[i].Organization
		resp.OpportunityStatus = list[i].OpportunityStatus
		out = append(out, resp)
	}
	return out
}

func toApplicantsResponse(list []repository.ApplicationWithApplicant) []applicationResponse {
	out := make([]applicationResponse, 0, len(list))
	for i := range list {
		resp := toApplicationResponse(&list[i].Application)
		resp.ApplicantName = list[i].ApplicantName
		resp.ApplicantEmail = list[i].ApplicantEmail
		resp.ApplicantCountry = list[i].ApplicantCountry
		out = append(out, resp)
	}
	return out
}

type sourceResponse struct {
	ID                   string                `json:"id"`
	SiteURL              string                `json:"site_url"`
	FeedURL              string                `json:"feed_url"`
	Title                string                `json:"title"`
	Organization         string                `json:"organization"`
	Country              string                `json:"country"`
	Sector               string                `json:"sector"`
	Type                 model.OpportunityType `json:"type"`
	FetchStatus          model.FetchStatus     `json:"fetch_status"`
	ConsecutiveErrors    int                   `json:"consecutive_errors"`
	ErrorMessage         string                `json:"error_message,omitempty"`
	FetchIntervalMinutes int                   `json:"fetch_interval_minutes"`
	NextFetchAt          time.Time             `json:"next_fetch_at"`
}

func toSourceResponse(s *model.OpportunitySource) sourceResponse {
	return sourceResponse{
		ID:                   s.ID,
		SiteURL:              s.SiteURL,
		FeedURL:              s.FeedURL,
		Title:                s.Title,
		Organization:         s.Organization,
		Country:              s.Country,
		Sector:               s.Sector,
		Type:                 s.Type,
		FetchStatus:          s.FetchStatus,
		ConsecutiveErrors:    s.ConsecutiveErrors,
		ErrorMessage:         s.ErrorMessage,
		FetchIntervalMinutes: s.FetchIntervalMinutes,
		NextFetchAt:          s.NextFetchAt,
	}
}
