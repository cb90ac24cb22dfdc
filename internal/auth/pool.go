package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hitoshi/evote/internal/ledger"
	"github.com/hitoshi/evote/internal/model"
)

// IdentityPool は新規有権者に割り当てる台帳アドレスのプール。
// 一度払い出したアドレスは登録に失敗しても再利用しない。
type IdentityPool struct {
	addrs chan common.Address
}

// NewIdentityPool は指定アドレスを順に払い出すプールを生成する。
func NewIdentityPool(addrs []common.Address) *IdentityPool {
	ch := make(chan common.Address, len(addrs))
	for _, a := range addrs {
		ch <- a
	}
	return &IdentityPool{addrs: ch}
}

// SeedIdentityPool はノードのアカウント一覧からプールを構築する。
// 先頭offset件（管理者アカウント等）と、台帳に登録済みのアドレスは除外する。
func SeedIdentityPool(ctx context.Context, accounts ledger.AccountLister, registry ledger.IdentityRegistry, offset int) (*IdentityPool, error) {
	all, err := accounts.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger accounts: %w", err)
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(all) {
		offset = len(all)
	}

	available := make([]common.Address, 0, len(all)-offset)
	skipped := 0
	for _, addr := range all[offset:] {
		user, err := registry.GetUser(ctx, addr)
		if err != nil {
			// 未登録アドレスでrevertする実装もあるため、ルール違反は未登録として扱う
			if fault, ok := ledger.AsFault(err); ok && fault.Kind == ledger.FaultRuleViolation {
				available = append(available, addr)
				continue
			}
			return nil, fmt.Errorf("failed to check registration of %s: %w", addr.Hex(), err)
		}
		if user.Address == addr {
			skipped++
			continue
		}
		available = append(available, addr)
	}

	slog.Info("identity pool seeded",
		slog.Int("accounts", len(all)),
		slog.Int("offset", offset),
		slog.Int("already_registered", skipped),
		slog.Int("available", len(available)),
	)
	return NewIdentityPool(available), nil
}

// Allocate は未使用のアドレスを1つ払い出す。
// 残りがない場合はNoIdentityAvailableErrorを返す。
func (p *IdentityPool) Allocate() (common.Address, error) {
	select {
	case addr := <-p.addrs:
		return addr, nil
	default:
		return common.Address{}, model.NewNoIdentityAvailableError()
	}
}

// Remaining は払い出し可能なアドレス数を返す。
func (p *IdentityPool) Remaining() int {
	return len(p.addrs)
}
