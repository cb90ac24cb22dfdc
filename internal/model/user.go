// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は台帳に登録された有権者の属性と台帳アドレスを表す。
// LedgerAddress が台帳上の一意キー（EIP-55形式の16進文字列）。
type Identity struct {
	DisplayName            string
	ContactNumber          string
	RegistrationCredential string
	LedgerAddress          string
}

// Session はサーバー側で保持するログインセッションを表す。
// Identity はバインド時点で台帳から解決した値のスナップショットであり、
// 作成後に台帳と同期されることはない。
type Session struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RegistrationReceipt は有権者登録トランザクションの結果。
type RegistrationReceipt struct {
	LedgerAddress   string
	TransactionHash string
}
