// Package opportunity は機会の閲覧・管理と応募のドメインロジックを提供する。
package opportunity

import (
	"strings"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/security"
)

// Filter は機会一覧の絞り込み条件。空文字の項目は条件として扱わない。
//   - Country, Sector: 大文字小文字を区別する完全一致
//   - Type: 完全一致
//   - Search: タイトル、説明文（平文）、団体名に対する大文字小文字を区別しない部分一致
type Filter struct {
	Country string
	Sector  string
	Type    model.OpportunityType
	Search  string
}

// Matches は機会が全ての条件を満たすかどうかを返す。
func (f Filter) Matches(o *model.Opportunity) bool {
	if o == nil {
		return false
	}
	if f.Country != "" && o.Country != f.Country {
		return false
	}
	if f.Sector != "" && o.Sector != f.Sector {
		return false
	}
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	return f.matchesSearch(o)
}

func (f Filter) matchesSearch(o *model.Opportunity) bool {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{o.Title, security.PlainText(o.Description), o.Organization} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Apply はoppsのうち条件を満たすものを順序を保って返す。
func (f Filter) Apply(opps []*model.Opportunity) []*model.Opportunity {
	result := make([]*model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if f.Matches(o) {
			result = append(result, o)
		}
	}
	return result
}

// query はリポジトリに渡す条件を組み立てる。
func (f Filter) query(status model.OpportunityStatus) model.OpportunityFilter {
	return model.OpportunityFilter{
		Country: f.Country,
		Sector:  f.Sector,
		Type:    f.Type,
		Search:  strings.TrimSpace(f.Search),
		Status:  status,
	}
}
