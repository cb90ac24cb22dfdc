// Package candidate は候補者の登録と一覧取得を提供する。
//
// 入力の検証・変換はすべてファイル保存と台帳書き込みの前に行う。
// 保存後に台帳への登録が失敗しても、保存済みファイルは削除しない。
package candidate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/hitoshi/evote/internal/ledger"
	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/model"
	"github.com/hitoshi/evote/internal/security"
	"github.com/hitoshi/evote/internal/staging"
)

// Stager はアップロードファイルを保存するインターフェース。
type Stager interface {
	Stage(ctx context.Context, files staging.Files) (*staging.Result, error)
}

// Service は候補者に関するビジネスロジックを提供する。
type Service struct {
	ledger    ledger.CandidateLedger
	stager    Stager
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(l ledger.CandidateLedger, stager Stager, sanitizer security.TextSanitizerService, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		ledger:    l,
		stager:    stager,
		sanitizer: sanitizer,
		metrics:   m,
	}
}

// admission は検証・変換済みの候補者情報。
type admission struct {
	name       string
	age        int
	dob        time.Time
	region     string
	experience int
	submitter  common.Address
}

// AdmitCandidate は候補者を登録する。
// 写真とマニフェストを保存した後、submitterのアドレスから台帳へ登録し、
// 台帳が採番したSequenceIDを含む候補者情報を返す。
func (s *Service) AdmitCandidate(ctx context.Context, fields model.CandidateFields, files staging.Files, submitter string) (*model.Candidate, error) {
	c, err := s.admit(ctx, fields, files, submitter)
	s.metrics.RecordCandidateAdmitted(metrics.Outcome(err))
	return c, err
}

func (s *Service) admit(ctx context.Context, fields model.CandidateFields, files staging.Files, submitter string) (*model.Candidate, error) {
	in, err := s.parse(fields, submitter)
	if err != nil {
		return nil, err
	}

	staged, err := s.stager.Stage(ctx, files)
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.AddCandidate(ctx, in.submitter, ledger.NewCandidate{
		Name:              in.name,
		PhotoFileName:     staged.PhotoFileName,
		Age:               uint64(in.age),
		DOB:               uint64(in.dob.Unix()),
		Region:            in.region,
		Experience:        uint64(in.experience),
		ManifestoFileName: staged.ManifestoFileName,
	})
	if err != nil {
		slog.Error("failed to add candidate",
			slog.String("submitter", in.submitter.Hex()),
			slog.String("photo_file", staged.PhotoFileName),
			slog.String("error", err.Error()),
		)
		return nil, ledger.Normalize(err)
	}

	seq, err := s.resolveSequenceID(ctx, staged.PhotoFileName)
	if err != nil {
		return nil, err
	}

	slog.Info("candidate admitted",
		slog.Uint64("candidate_id", seq),
		slog.String("submitter", in.submitter.Hex()),
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return &model.Candidate{
		SequenceID:      seq,
		Name:            in.name,
		Age:             in.age,
		DateOfBirth:     in.dob,
		Region:          in.region,
		YearsExperience: in.experience,
		PhotoFile:       staged.PhotoFileName,
		ManifestoFile:   staged.ManifestoFileName,
	}, nil
}

// parse は入力値を検証・変換する。
// 必須項目の欠落はまとめてValidationErrorとし、その後に日付・数値の変換を行う。
func (s *Service) parse(fields model.CandidateFields, submitter string) (*admission, error) {
	name := s.sanitizer.Sanitize(fields.Name)
	region := s.sanitizer.Sanitize(fields.Region)
	ageRaw := strings.TrimSpace(fields.Age)
	dobRaw := strings.TrimSpace(fields.DOB)
	expRaw := strings.TrimSpace(fields.Experience)
	submitter = strings.TrimSpace(submitter)

	var merr *multierror.Error
	merr = model.RequireFields(merr,
		"name", name,
		"age", ageRaw,
		"dob", dobRaw,
		"region", region,
		"experience", expRaw,
		"adminAddress", submitter,
	)
	if submitter != "" && !common.IsHexAddress(submitter) {
		merr = multierror.Append(merr, &model.FieldError{Field: "adminAddress", Reason: "invalid address"})
	}
	if err := model.ValidationErrorFrom(merr); err != nil {
		return nil, err
	}

	dob, err := time.ParseInLocation(model.DateLayout, dobRaw, time.UTC)
	if err != nil {
		return nil, model.NewDateFormatError(dobRaw)
	}
	if dob.Unix() < 0 {
		// 台帳のdobはuint256
		return nil, model.NewDateOutOfRangeError(dobRaw)
	}
	age, err := parseCount("age", ageRaw)
	if err != nil {
		return nil, err
	}
	experience, err := parseCount("experience", expRaw)
	if err != nil {
		return nil, err
	}

	return &admission{
		name:       name,
		age:        age,
		dob:        dob,
		region:     region,
		experience: experience,
		submitter:  common.HexToAddress(submitter),
	}, nil
}

// parseCount は0以上の整数を解釈する。
func parseCount(field, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewTypeCoercionError(field, raw)
	}
	return n, nil
}

// resolveSequenceID は保存名が一致する候補者を末尾から探し、台帳が採番したIDを返す。
// 保存名は一意なので、同時に登録された他の候補者と取り違えることはない。
func (s *Service) resolveSequenceID(ctx context.Context, photoFileName string) (uint64, error) {
	count, err := s.ledger.CandidatesCount(ctx)
	if err != nil {
		return 0, ledger.Normalize(err)
	}
	for id := count; id >= 1; id-- {
		rec, err := s.ledger.Candidate(ctx, id)
		if isUndecodable(err) {
			continue
		}
		if err != nil {
			return 0, ledger.Normalize(err)
		}
		if rec.PhotoFileName == photoFileName {
			return rec.ID, nil
		}
	}
	return 0, fmt.Errorf("admitted candidate with photo %s not found on ledger", photoFileName)
}

// ListCandidates は台帳に登録されたすべての候補者をID順に返す。
func (s *Service) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	count, err := s.ledger.CandidatesCount(ctx)
	if err != nil {
		slog.Error("failed to count candidates", slog.String("error", err.Error()))
		return nil, ledger.Normalize(err)
	}

	candidates := make([]*model.Candidate, 0, count)
	for id := uint64(1); id <= count; id++ {
		rec, err := s.ledger.Candidate(ctx, id)
		if isUndecodable(err) {
			slog.Warn("skipping undecodable candidate",
				slog.Uint64("candidate_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			slog.Error("failed to get candidate",
				slog.Uint64("candidate_id", id),
				slog.String("error", err.Error()),
			)
			return nil, ledger.Normalize(err)
		}
		candidates = append(candidates, fromRecord(rec))
	}
	return candidates, nil
}

// isUndecodable は台帳の応答は得られたが候補者として解釈できない場合にtrueを返す。
func isUndecodable(err error) bool {
	fault, ok := ledger.AsFault(err)
	return ok && fault.Kind == ledger.FaultDecode
}

func fromRecord(rec *ledger.CandidateRecord) *model.Candidate {
	return &model.Candidate{
		SequenceID:      rec.ID,
		Name:            rec.Name,
		Age:             int(rec.Age),
		DateOfBirth:     time.Unix(int64(rec.DOB), 0).UTC(),
		Region:          rec.Region,
		YearsExperience: int(rec.Experience),
		PhotoFile:       rec.PhotoFileName,
		ManifestoFile:   rec.ManifestoFileName,
		VoteCount:       rec.VoteCount,
	}
}
