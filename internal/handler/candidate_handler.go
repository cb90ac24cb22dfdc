package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/evote/internal/middleware"
	"github.com/hitoshi/evote/internal/model"
	"github.com/hitoshi/evote/internal/staging"
)

// multipartMemory はマルチパート解析時にメモリへ保持する上限。超過分は一時ファイルに書き出す。
const multipartMemory = 8 << 20

// CandidateServiceInterface は候補者ハンドラーが必要とするサービスインターフェース。
type CandidateServiceInterface interface {
	AdmitCandidate(ctx context.Context, fields model.CandidateFields, files staging.Files, submitter string) (*model.Candidate, error)
	ListCandidates(ctx context.Context) ([]*model.Candidate, error)
}

// CandidateHandler は候補者関連のHTTPハンドラー。
type CandidateHandler struct {
	service       CandidateServiceInterface
	uploadMaxSize int64
}

// NewCandidateHandler はCandidateHandlerを生成する。
func NewCandidateHandler(service CandidateServiceInterface, uploadMaxSize int64) *CandidateHandler {
	return &CandidateHandler{
		service:       service,
		uploadMaxSize: uploadMaxSize,
	}
}

type candidateResponse struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	Age               int    `json:"age"`
	DOB               string `json:"dob"`
	Region            string `json:"region"`
	Experience        int    `json:"experience"`
	PhotoFileName     string `json:"photoFileName"`
	ManifestoFileName string `json:"manifestoFileName"`
	VoteCount         uint64 `json:"voteCount"`
}

type dashboardResponse struct {
	Candidates []candidateResponse   `json:"candidates"`
	User       *sessionUserResponse `json:"user"`
}

type adminResponse struct {
	Candidates []candidateResponse `json:"candidates"`
}

type addCandidateResponse struct {
	Message   string            `json:"message"`
	Candidate candidateResponse `json:"candidate"`
}

// Dashboard は候補者一覧とログイン中の有権者情報を返す。
// GET /dashboard
func (h *CandidateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.service.ListCandidates(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var user *sessionUserResponse
	if session := middleware.SessionFromContext(r.Context()); session != nil {
		user = toSessionUserResponse(session)
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Candidates: toCandidateResponses(candidates),
		User:       user,
	})
}

// Admin は管理画面向けの候補者一覧を返す。
// GET /admin
func (h *CandidateHandler) Admin(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.service.ListCandidates(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{Candidates: toCandidateResponses(candidates)})
}

// AddCandidate は写真とマニフェストを受け取り、候補者を登録する。
// POST /addCandidate (multipart/form-data)
func (h *CandidateHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	if h.uploadMaxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		handleServiceError(w, r, bodyError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, closeFiles, err := formFiles(r, "photo", "manifesto")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer closeFiles()

	fields := model.CandidateFields{
		Name:       r.FormValue("name"),
		Age:        r.FormValue("age"),
		DOB:        r.FormValue("dob"),
		Region:     r.FormValue("region"),
		Experience: r.FormValue("experience"),
	}

	candidate, err := h.service.AdmitCandidate(r.Context(), fields, files, r.FormValue("adminAddress"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, addCandidateResponse{
		Message:   "Candidate added successfully!",
		Candidate: toCandidateResponse(candidate),
	})
}

// formFiles は写真とマニフェストのファイルを取り出す。添付されていない項目はnilのまま返す。
func formFiles(r *http.Request, photoField, manifestoField string) (staging.Files, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(field string) (*staging.File, error) {
		f, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		opened = append(opened, f)
		return &staging.File{
			OriginalName: header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Content:      f,
		}, nil
	}

	photo, err := open(photoField)
	if err != nil {
		closeAll()
		slog.Warn("failed to open uploaded file", slog.String("field", photoField), slog.String("error", err.Error()))
		return staging.Files{}, nil, model.NewValidationError(photoField + ": unreadable")
	}
	manifesto, err := open(manifestoField)
	if err != nil {
		closeAll()
		slog.Warn("failed to open uploaded file", slog.String("field", manifestoField), slog.String("error", err.Error()))
		return staging.Files{}, nil, model.NewValidationError(manifestoField + ": unreadable")
	}
	return staging.Files{Photo: photo, Manifesto: manifesto}, closeAll, nil
}

func toCandidateResponse(c *model.Candidate) candidateResponse {
	return candidateResponse{
		ID:                c.SequenceID,
		Name:              c.Name,
		Age:               c.Age,
		DOB:               c.DateOfBirthString(),
		Region:            c.Region,
		Experience:        c.YearsExperience,
		PhotoFileName:     c.PhotoFile,
		ManifestoFileName: c.ManifestoFile,
		VoteCount:         c.VoteCount,
	}
}

func toCandidateResponses(candidates []*model.Candidate) []candidateResponse {
	out := make([]candidateResponse, len(candidates))
	for i, c := range candidates {
		out[i] = toCandidateResponse(c)
	}
	return out
}
