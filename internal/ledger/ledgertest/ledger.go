// Package ledgertest はテスト用のインメモリ台帳を提供する。
// OnlineVotingコントラクトと同じ業務ルールでrevert相当のFaultを返す。
package ledgertest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hitoshi/evote/internal/ledger"
)

// revert理由
const (
	ReasonAlreadyRegistered = "User already registered"
	ReasonNotRegistered     = "User not registered"
	ReasonAlreadyVoted      = "Already voted"
	ReasonInvalidCandidate  = "Invalid candidate"
	ReasonOnlyAdmin         = "Only admin can add candidates"
)

// Ledger はインメモリの台帳。Accountsの先頭アカウントを管理者とする。
type Ledger struct {
	mu         sync.Mutex
	accounts   []common.Address
	users      map[common.Address]ledger.UserRecord
	voted      map[common.Address]bool
	candidates []ledger.CandidateRecord
	txCount    uint64

	// Err が設定されている場合、すべての呼び出しがこのエラーを返す。
	Err error
}

var (
	_ ledger.IdentityRegistry = (*Ledger)(nil)
	_ ledger.CandidateLedger  = (*Ledger)(nil)
	_ ledger.AccountLister    = (*Ledger)(nil)
)

// New は指定数のアカウントを持つ台帳を生成する。
func New(accountCount int) *Ledger {
	accounts := make([]common.Address, accountCount)
	for i := range accounts {
		accounts[i] = Account(i)
	}
	return &Ledger{
		accounts: accounts,
		users:    make(map[common.Address]ledger.UserRecord),
		voted:    make(map[common.Address]bool),
	}
}

// Account はNewが生成するi番目のアカウントアドレスを返す。
func Account(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

// Admin は管理者アカウントを返す。
func (l *Ledger) Admin() common.Address {
	return Account(0)
}

func revert(method, reason string) error {
	return &ledger.Fault{Kind: ledger.FaultRuleViolation, Method: method, Reason: reason}
}

func (l *Ledger) receipt() *ledger.Receipt {
	l.txCount++
	return &ledger.Receipt{
		TxHash:      common.BigToHash(new(big.Int).SetUint64(l.txCount)),
		BlockNumber: l.txCount,
	}
}

// Accounts はノード管理アカウントの一覧を返す。
func (l *Ledger) Accounts(ctx context.Context) ([]common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return append([]common.Address(nil), l.accounts...), nil
}

// RegisterUser は有権者を登録する。同じアドレスの二重登録はrevertする。
func (l *Ledger) RegisterUser(ctx context.Context, from common.Address, name, mobile, credential string) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if _, ok := l.users[from]; ok {
		return nil, revert("registerUser", ReasonAlreadyRegistered)
	}
	l.users[from] = ledger.UserRecord{Name: name, Mobile: mobile, Credential: credential, Address: from}
	return l.receipt(), nil
}

// GetUser は有権者情報を返す。未登録の場合はゼロ値を返す。
func (l *Ledger) GetUser(ctx context.Context, addr common.Address) (*ledger.UserRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	user := l.users[addr]
	return &user, nil
}

// LoginUser は登録番号とアドレスの組が登録済みかを返す。
func (l *Ledger) LoginUser(ctx context.Context, credential string, addr common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return false, l.Err
	}
	user, ok := l.users[addr]
	return ok && user.Credential == credential, nil
}

// CandidatesCount は候補者数を返す。
func (l *Ledger) CandidatesCount(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return 0, l.Err
	}
	return uint64(len(l.candidates)), nil
}

// Candidate は候補者を返す。範囲外のIDはゼロ値を返す。
func (l *Ledger) Candidate(ctx context.Context, id uint64) (*ledger.CandidateRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if id == 0 || id > uint64(len(l.candidates)) {
		return &ledger.CandidateRecord{}, nil
	}
	c := l.candidates[id-1]
	return &c, nil
}

// AddCandidate は候補者を登録する。管理者以外からの呼び出しはrevertする。
func (l *Ledger) AddCandidate(ctx context.Context, from common.Address, c ledger.NewCandidate) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if len(l.accounts) == 0 || from != l.accounts[0] {
		return nil, revert("addCandidate", ReasonOnlyAdmin)
	}
	l.candidates = append(l.candidates, ledger.CandidateRecord{
		ID:                uint64(len(l.candidates) + 1),
		Name:              c.Name,
		PhotoFileName:     c.PhotoFileName,
		Age:               c.Age,
		DOB:               c.DOB,
		Region:            c.Region,
		Experience:        c.Experience,
		ManifestoFileName: c.ManifestoFileName,
	})
	return l.receipt(), nil
}

// Vote は投票する。未登録・二重投票・存在しない候補者はrevertする。
func (l *Ledger) Vote(ctx context.Context, from common.Address, candidateID uint64) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if _, ok := l.users[from]; !ok {
		return nil, revert("vote", ReasonNotRegistered)
	}
	if l.voted[from] {
		return nil, revert("vote", ReasonAlreadyVoted)
	}
	if candidateID == 0 || candidateID > uint64(len(l.candidates)) {
		return nil, revert("vote", ReasonInvalidCandidate)
	}
	l.voted[from] = true
	l.candidates[candidateID-1].VoteCount++
	return l.receipt(), nil
}

// GetWinner は最多得票の候補者を返す。同数の場合は先に登録された候補者。
func (l *Ledger) GetWinner(ctx context.Context) (*ledger.WinnerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	winner := &ledger.WinnerRecord{}
	for _, c := range l.candidates {
		if c.VoteCount > winner.Votes {
			winner = &ledger.WinnerRecord{Name: c.Name, Votes: c.VoteCount}
		}
	}
	return winner, nil
}
