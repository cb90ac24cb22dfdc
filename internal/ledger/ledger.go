// Package ledger は投票コントラクト（OnlineVoting）を持つ外部台帳とのやり取りを提供する。
//
// 台帳は有権者登録・候補者・投票の唯一の正とし、このパッケージは
// JSON-RPC呼び出しと失敗の分類（Fault）だけを担う。
package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UserRecord は台帳のgetUserが返す有権者情報。
type UserRecord struct {
	Name       string
	Mobile     string
	Credential string
	Address    common.Address
}

// CandidateRecord は台帳のcandidatesが返す候補者情報。
type CandidateRecord struct {
	ID                uint64
	Name              string
	PhotoFileName     string
	Age               uint64
	DOB               uint64 // UNIX秒。台帳はuint256のため1970年以前は表現できない
	Region            string
	Experience        uint64
	ManifestoFileName string
	VoteCount         uint64
}

// NewCandidate はaddCandidateに渡す候補者情報。
type NewCandidate struct {
	Name              string
	PhotoFileName     string
	Age               uint64
	DOB               uint64 // UNIX秒。台帳はuint256のため1970年以前は表現できない
	Region            string
	Experience        uint64
	ManifestoFileName string
}

// Receipt は採掘済みトランザクションの結果。
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// WinnerRecord は台帳のgetWinnerが返す結果。
type WinnerRecord struct {
	Name  string
	Votes uint64
}

// IdentityRegistry は台帳の有権者登録機能のインターフェース。
type IdentityRegistry interface {
	// RegisterUser はfromアドレスから有権者登録トランザクションを送信する。
	RegisterUser(ctx context.Context, from common.Address, name, mobile, credential string) (*Receipt, error)
	// GetUser は指定アドレスの有権者情報を取得する。
	GetUser(ctx context.Context, addr common.Address) (*UserRecord, error)
	// LoginUser は登録番号とアドレスの組が有効かを台帳に問い合わせる。
	LoginUser(ctx context.Context, credential string, addr common.Address) (bool, error)
}

// CandidateLedger は台帳の候補者・投票機能のインターフェース。
type CandidateLedger interface {
	// CandidatesCount は登録済み候補者数を返す。候補者IDは1から始まる連番。
	CandidatesCount(ctx context.Context) (uint64, error)
	// Candidate は指定IDの候補者を取得する。
	Candidate(ctx context.Context, id uint64) (*CandidateRecord, error)
	// AddCandidate はfromアドレス（管理者）から候補者登録トランザクションを送信する。
	AddCandidate(ctx context.Context, from common.Address, c NewCandidate) (*Receipt, error)
	// Vote はfromアドレスから投票トランザクションを送信する。
	Vote(ctx context.Context, from common.Address, candidateID uint64) (*Receipt, error)
	// GetWinner は最多得票の候補者を返す。
	GetWinner(ctx context.Context) (*WinnerRecord, error)
}

// AccountLister はノードが管理するアカウント一覧を取得するインターフェース。
type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// Observer は台帳呼び出しの結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type Observer interface {
	RecordLedgerCall(method, outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordLedgerCall(string, string, time.Duration) {}
