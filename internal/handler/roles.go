package handler

import (
	"context"

	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

// ProfileFinder はプロフィールをIDで取得する。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// profileRoleFinder はプロフィールに保存されたロールを返すRoleFinder。
type profileRoleFinder struct {
	profiles ProfileFinder
}

// NewProfileRoleFinder はプロフィールを参照するRoleFinderを生成する。
func NewProfileRoleFinder(profiles ProfileFinder) middleware.RoleFinder {
	return &profileRoleFinder{profiles: profiles}
}

// FindRole はユーザーの保存済みロールを返す。プロフィールがない場合は空文字を返す。
func (f *profileRoleFinder) FindRole(ctx context.Context, userID string) (model.Role, error) {
	p, err := f.profiles.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	return p.Role, nil
}
