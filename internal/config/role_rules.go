package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/africashands/platform/internal/role"
)

// LoadRoleRules はYAMLファイルからロール判定規則を読み込む。
// pathが空の場合は組み込みの既定値を返す。
// ファイル内で省略された項目は既定値を引き継ぐ。
//
//	admin_emails:
//	  - admin@africashands.com
//	admin_domains:
//	  - africashands.org
//	admin_keywords: []
func LoadRoleRules(path string) (role.Rules, error) {
	rules := role.DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return role.Rules{}, fmt.Errorf("failed to read role rules file: %w", err)
	}

	var fileRules struct {
		AdminEmails   *[]string `yaml:"admin_emails"`
		AdminDomains  *[]string `yaml:"admin_domains"`
		AdminKeywords *[]string `yaml:"admin_keywords"`
	}
	if err := yaml.Unmarshal(data, &fileRules); err != nil {
		return role.Rules{}, fmt.Errorf("failed to parse role rules file: %w", err)
	}

	if fileRules.AdminEmails != nil {
		rules.AdminEmails = *fileRules.AdminEmails
	}
	if fileRules.AdminDomains != nil {
		rules.AdminDomains = *fileRules.AdminDomains
	}
	if fileRules.AdminKeywords != nil {
		rules.AdminKeywords = *fileRules.AdminKeywords
	}

	return rules, nil
}
