package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/africashands/platform/internal/auth"
	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/opportunity"
	"github.com/africashands/platform/internal/realtime"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/source"
	"github.com/africashands/platform/internal/storage"
	"github.com/africashands/platform/internal/user"
)

// --- モック ---

type mockAuthService struct {
	exchangeCodeFn     func(ctx context.Context, code string) (*auth.OAuthUserInfo, error)
	establishFn        func(ctx context.Context, info *auth.OAuthUserInfo) (*auth.SignInResult, error)
	hasSessionFn       func(ctx context.Context, sessionID string) (bool, error)
	registerFn         func(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error)
	loginFn            func(ctx context.Context, email, password string) (*auth.SignInResult, error)
	logoutFn           func(ctx context.Context, sessionID string) error
	refreshFn          func(ctx context.Context, sessionID string) (*model.Session, error)
	meFn               func(ctx context.Context, sessionID string) (*auth.MeResult, error)
	requestResetFn     func(ctx context.Context, email string) error
	resetPasswordFn    func(ctx context.Context, token, newPassword string) error
	publishedSessionID []string
}

func (m *mockAuthService) GetLoginURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}
func (m *mockAuthService) ExchangeCode(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return &auth.OAuthUserInfo{ProviderUserID: "sub-1", Email: "ana@example.com", Provider: model.ProviderGoogle}, nil
}
func (m *mockAuthService) EstablishSession(ctx context.Context, info *auth.OAuthUserInfo) (*auth.SignInResult, error) {
	if m.establishFn != nil {
		return m.establishFn(ctx, info)
	}
	return nil, nil
}
func (m *mockAuthService) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if m.hasSessionFn != nil {
		return m.hasSessionFn(ctx, sessionID)
	}
	return sessionID != "", nil
}
func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}
func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.SignInResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}
func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}
func (m *mockAuthService) Refresh(ctx context.Context, sessionID string) (*model.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, sessionID)
	}
	return nil, nil
}
func (m *mockAuthService) Me(ctx context.Context, sessionID string) (*auth.MeResult, error) {
	if m.meFn != nil {
		return m.meFn(ctx, sessionID)
	}
	return nil, nil
}
func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestResetFn != nil {
		return m.requestResetFn(ctx, email)
	}
	return nil
}
func (m *mockAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, newPassword)
	}
	return nil
}
func (m *mockAuthService) PublishUserUpdated(ctx context.Context, sessionID string) {
	m.publishedSessionID = append(m.publishedSessionID, sessionID)
}

type mockStateWaiter struct {
	state authstate.State
}

func (m *mockStateWaiter) WaitSettled(ctx context.Context, sessionID string) authstate.State {
	return m.state
}

type mockOpportunityService struct {
	listFn   func(ctx context.Context, actor model.Actor, q opportunity.ListQuery) ([]*model.Opportunity, error)
	getFn    func(ctx context.Context, actor model.Actor, id string) (*model.Opportunity, error)
	createFn func(ctx context.Context, actor model.Actor, in opportunity.Input) (*model.Opportunity, error)
	deleteFn func(ctx context.Context, actor model.Actor, id string) error
}

func (m *mockOpportunityService) List(ctx context.Context, actor model.Actor, q opportunity.ListQuery) ([]*model.Opportunity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, q)
	}
	return nil, nil
}
func (m *mockOpportunityService) Get(ctx context.Context, actor model.Actor, id string) (*model.Opportunity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, actor, id)
	}
	return nil, model.NewOpportunityNotFoundError(id)
}
func (m *mockOpportunityService) Create(ctx context.Context, actor model.Actor, in opportunity.Input) (*model.Opportunity, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return nil, nil
}
func (m *mockOpportunityService) Update(ctx context.Context, actor model.Actor, id string, in opportunity.Input) (*model.Opportunity, error) {
	return &model.Opportunity{ID: id, Title: in.Title}, nil
}
func (m *mockOpportunityService) Delete(ctx context.Context, actor model.Actor, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

type mockApplicationService struct {
	applyFn        func(ctx context.Context, actor model.Actor, opportunityID string, in opportunity.ApplyInput) (*model.Application, error)
	listMineFn     func(ctx context.Context, actor model.Actor) ([]repository.ApplicationWithOpportunity, error)
	updateStatusFn func(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error)
}

func (m *mockApplicationService) Apply(ctx context.Context, actor model.Actor, opportunityID string, in opportunity.ApplyInput) (*model.Application, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, actor, opportunityID, in)
	}
	return &model.Application{ID: "app-1", OpportunityID: opportunityID, UserID: actor.UserID, Message: in.Message}, nil
}
func (m *mockApplicationService) ListMine(ctx context.Context, actor model.Actor) ([]repository.ApplicationWithOpportunity, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, actor)
	}
	return []repository.ApplicationWithOpportunity{}, nil
}
func (m *mockApplicationService) ListForOpportunity(ctx context.Context, actor model.Actor, opportunityID string) ([]repository.ApplicationWithApplicant, error) {
	return []repository.ApplicationWithApplicant{}, nil
}
func (m *mockApplicationService) UpdateStatus(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, actor, applicationID, status)
	}
	return &model.Application{ID: applicationID, Status: status}, nil
}

type mockUserService struct {
	listFn     func(ctx context.Context, actor model.Actor, limit, offset int) ([]*model.Profile, error)
	setRoleFn  func(ctx context.Context, actor model.Actor, userID string, role model.Role) (*model.Profile, error)
	withdrawFn func(ctx context.Context, actor model.Actor, userID string) error
}

func (m *mockUserService) ListUsers(ctx context.Context, actor model.Actor, limit, offset int) ([]*model.Profile, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, limit, offset)
	}
	return []*model.Profile{}, nil
}
func (m *mockUserService) CreateUser(ctx context.Context, actor model.Actor, in user.CreateUserInput) (*model.Profile, error) {
	return &model.Profile{ID: "new-user", Email: in.Email, Role: in.Role, RoleSource: model.RoleSourceExplicit}, nil
}
func (m *mockUserService) SetRole(ctx context.Context, actor model.Actor, userID string, role model.Role) (*model.Profile, error) {
	if m.setRoleFn != nil {
		return m.setRoleFn(ctx, actor, userID, role)
	}
	return &model.Profile{ID: userID, Role: role, RoleSource: model.RoleSourceExplicit}, nil
}
func (m *mockUserService) Withdraw(ctx context.Context, actor model.Actor, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, actor, userID)
	}
	return nil
}

type mockSourceService struct {
	registerFn func(ctx context.Context, actor model.Actor, in source.RegisterInput) (*model.OpportunitySource, error)
}

func (m *mockSourceService) Register(ctx context.Context, actor model.Actor, in source.RegisterInput) (*model.OpportunitySource, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, actor, in)
	}
	return &model.OpportunitySource{ID: "src-1", FeedURL: in.URL}, nil
}
func (m *mockSourceService) List(ctx context.Context, actor model.Actor) ([]*model.OpportunitySource, error) {
	return []*model.OpportunitySource{}, nil
}

type mockProfileStore struct {
	findByIDFn func(ctx context.Context, id string) (*model.Profile, error)
	updateFn   func(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
}

func (m *mockProfileStore) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockProfileStore) Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, update)
	}
	return nil, nil
}

type mockImages struct {
	uploadFn func(ctx context.Context, actor model.Actor, opportunityID, filename string, r io.Reader) (*storage.Uploaded, error)
	openFn   func(ctx context.Context, id string) (*model.OpportunityImage, error)
	maxBytes int64
}

func (m *mockImages) Upload(ctx context.Context, actor model.Actor, opportunityID, filename string, r io.Reader) (*storage.Uploaded, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, actor, opportunityID, filename, r)
	}
	return nil, nil
}
func (m *mockImages) MaxBytes() int64 {
	if m.maxBytes == 0 {
		return 1 << 20
	}
	return m.maxBytes
}
func (m *mockImages) Open(ctx context.Context, id string) (*model.OpportunityImage, error) {
	if m.openFn != nil {
		return m.openFn(ctx, id)
	}
	return nil, model.NewImageNotFoundError()
}

type stubChanges struct {
	ch chan realtime.Change
}

func (s *stubChanges) Subscribe() (<-chan realtime.Change, func()) {
	return s.ch, func() {}
}

// --- ヘルパー ---

var (
	testAdmin   = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
	testRegular = model.Actor{UserID: "user-1", Role: model.RoleUser}
)

func withActor(r *http.Request, actor model.Actor) *http.Request {
	return r.WithContext(middleware.ContextWithActor(r.Context(), actor))
}

// errorCode はエラーレスポンスのcodeを返す。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
