// Package contact は外部メッセージングへの連絡リンクを生成する。
package contact

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

const whatsAppBaseURL = "https://wa.me/"

// ErrInvalidNumber は電話番号に数字が含まれない、または桁数が不正な場合のエラー。
var ErrInvalidNumber = errors.New("invalid phone number")

// E.164の桁数範囲（国番号を含む）
const (
	minDigits = 8
	maxDigits = 15
)

// WhatsAppLink は https://wa.me/<数字>?text=<エスケープ済み本文> 形式のリンクを返す。
// 番号の空白・記号・先頭の+は除去する。本文が空の場合はtextパラメータを付けない。
func WhatsAppLink(number, text string) (string, error) {
	digits := Digits(number)
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalidNumber
	}
	link := whatsAppBaseURL + digits
	if text = strings.TrimSpace(text); text != "" {
		link += "?text=" + url.QueryEscape(text)
	}
	return link, nil
}

// Digits は文字列からASCII数字のみを取り出す。
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
