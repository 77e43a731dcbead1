package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	chatapp "github.com/jinford/pdf-rag/internal/module/chat/application"
	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
)

// maxUploadBytes はアップロードの最大サイズ（50MiB）
const maxUploadBytes = 50 << 20

// Uploader はPDFを受理して取り込みジョブを積むインターフェース
type Uploader interface {
	Accept(ctx context.Context, filename string, content io.Reader) (*domain.UploadJob, error)
}

// Answerer は質問に対する回答を生成するインターフェース
type Answerer interface {
	Ask(ctx context.Context, question string) (*chatapp.AskResult, error)
}

// Handler はHTTP APIのハンドラ群を保持します
type Handler struct {
	uploader Uploader
	answerer Answerer
	logger   *slog.Logger
}

// HandlerOption はHandler構築時のオプション
type HandlerOption func(*Handler)

// WithHandlerLogger はロガーを差し替える
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler は新しいHandlerを作成します
func NewHandler(uploader Uploader, answerer Answerer, opts ...HandlerOption) *Handler {
	h := &Handler{
		uploader: uploader,
		answerer: answerer,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes はAPIのルーティングを組み立てます
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /upload/pdf", h.handleUploadPDF)
	mux.HandleFunc("GET /chat", h.handleChat)
	return mux
}

// uploadResponse はPOST /upload/pdf のレスポンス
type uploadResponse struct {
	Message string `json:"msg"`
	JobID   string `json:"job_id"`
}

// chatResponse はGET /chat のレスポンス
type chatResponse struct {
	Answer  string       `json:"answer"`
	Sources []chatSource `json:"sources"`
}

// chatSource は回答の根拠となったチャンク
type chatSource struct {
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float32 `json:"score"`
	Text          string  `json:"text"`
}

// errorResponse はエラー時の共通レスポンス
type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadPDF はmultipartのpdfフィールドを受け取り、取り込みジョブを積みます
// レスポンスを返した時点で取り込みの完了は保証されない
func (h *Handler) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field \"pdf\" is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "only PDF files are accepted"})
		return
	}

	job, err := h.uploader.Accept(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to accept upload", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to accept upload"})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Message: "uploaded", JobID: job.ID.String()})
}

// handleChat はユーザの質問に対して取り込み済みドキュメントに基づく回答を返します
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter \"message\" is required"})
		return
	}

	result, err := h.answerer.Ask(r.Context(), message)
	if err != nil {
		// 失敗ステージの内訳はログにのみ残し、クライアントには汎用メッセージを返す
		var qErr *chatapp.QueryError
		if errors.As(err, &qErr) {
			h.logger.Error("chat query failed", "stage", qErr.Stage, "error", err)
		} else {
			h.logger.Error("chat query failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to answer question"})
		return
	}

	sources := make([]chatSource, 0, len(result.Sources))
	for _, src := range result.Sources {
		sources = append(sources, chatSource{
			DocumentID:    src.DocumentID,
			SequenceIndex: src.SequenceIndex,
			Score:         src.Score,
			Text:          src.Text,
		})
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: result.Answer, Sources: sources})
}

// writeJSON はJSONレスポンスを書き出します
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
