// Package voting は投票と集計結果の取得を台帳へ中継する。
package voting

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hitoshi/evote/internal/ledger"
	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/model"
)

// Service は投票に関するビジネスロジックを提供する。
// 二重投票や存在しない候補者の判定は台帳に委ねる。
type Service struct {
	ledger  ledger.CandidateLedger
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(l ledger.CandidateLedger, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{ledger: l, metrics: m}
}

// CastVote はセッションの台帳アドレスから指定候補者へ投票する。
// sessionはHTTP境界で解決済みのものを受け取る。nilの場合はUnauthenticatedErrorを返す。
func (s *Service) CastVote(ctx context.Context, session *model.Session, candidateID uint64) (*model.VoteReceipt, error) {
	if session == nil {
		err := model.NewUnauthenticatedError()
		s.metrics.RecordVote(metrics.Outcome(err))
		return nil, err
	}

	voter := session.Identity.LedgerAddress
	receipt, err := s.ledger.Vote(ctx, common.HexToAddress(voter), candidateID)
	if err != nil {
		s.metrics.RecordVote(metrics.Outcome(err))
		slog.Error("failed to cast vote",
			slog.String("ledger_address", voter),
			slog.Uint64("candidate_id", candidateID),
			slog.String("error", err.Error()),
		)
		return nil, ledger.Normalize(err)
	}
	s.metrics.RecordVote(metrics.Outcome(nil))

	slog.Info("vote cast",
		slog.String("ledger_address", voter),
		slog.Uint64("candidate_id", candidateID),
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return &model.VoteReceipt{
		CandidateID:     candidateID,
		VoterAddress:    voter,
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     receipt.BlockNumber,
	}, nil
}

// Results は現時点の最多得票候補者を返す。
func (s *Service) Results(ctx context.Context) (*model.Winner, error) {
	winner, err := s.ledger.GetWinner(ctx)
	if err != nil {
		slog.Error("failed to get winner", slog.String("error", err.Error()))
		return nil, ledger.Normalize(err)
	}
	return &model.Winner{Name: winner.Name, Votes: winner.Votes}, nil
}
