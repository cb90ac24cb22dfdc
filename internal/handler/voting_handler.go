package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/evote/internal/middleware"
	"github.com/hitoshi/evote/internal/model"
)

// VotingServiceInterface は投票ハンドラーが必要とするサービスインターフェース。
type VotingServiceInterface interface {
	CastVote(ctx context.Context, session *model.Session, candidateID uint64) (*model.VoteReceipt, error)
	Results(ctx context.Context) (*model.Winner, error)
}

// VotingHandler は投票・集計関連のHTTPハンドラー。
type VotingHandler struct {
	service VotingServiceInterface
}

// NewVotingHandler はVotingHandlerを生成する。
func NewVotingHandler(service VotingServiceInterface) *VotingHandler {
	return &VotingHandler{service: service}
}

type voteResponse struct {
	Message     string `json:"message"`
	Transaction string `json:"transaction"`
}

type resultsResponse struct {
	Winner string `json:"winner"`
	Votes  uint64 `json:"votes"`
}

// Vote はセッションの有権者として投票する。
// POST /vote
func (h *VotingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	fields, err := requestFields(w, r, "candidateId")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	raw := strings.TrimSpace(fields["candidateId"])
	if raw == "" {
		handleServiceError(w, r, model.NewValidationError("candidateId: required"))
		return
	}
	candidateID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		handleServiceError(w, r, model.NewValidationError("candidateId: invalid"))
		return
	}

	receipt, err := h.service.CastVote(r.Context(), middleware.SessionFromContext(r.Context()), candidateID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{
		Message:     "Vote casted successfully",
		Transaction: receipt.TransactionHash,
	})
}

// Results は最多得票の候補者と得票数を返す。
// GET /results
func (h *VotingHandler) Results(w http.ResponseWriter, r *http.Request) {
	winner, err := h.service.Results(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{Winner: winner.Name, Votes: winner.Votes})
}
