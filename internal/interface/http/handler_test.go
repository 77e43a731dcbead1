package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatapp "github.com/jinford/pdf-rag/internal/module/chat/application"
	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// fakeUploader は受け取ったアップロードを記録するUploader
type fakeUploader struct {
	lastFilename string
	lastContent  []byte
	err          error
}

func (f *fakeUploader) Accept(ctx context.Context, filename string, content io.Reader) (*domain.UploadJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.lastFilename = filename
	f.lastContent = data
	return &domain.UploadJob{
		ID:         uuid.MustParse("a7f3c2d1-0000-4000-8000-000000000001"),
		Filename:   filename,
		SourcePath: "uploads/123-" + filename,
		EnqueuedAt: time.Now(),
	}, nil
}

// fakeAnswerer は固定の回答を返すAnswerer
type fakeAnswerer struct {
	lastQuestion string
	result       *chatapp.AskResult
	err          error
}

func (f *fakeAnswerer) Ask(ctx context.Context, question string) (*chatapp.AskResult, error) {
	f.lastQuestion = question
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// multipartBody はpdfフィールドを持つmultipartボディを組み立てます
func multipartBody(t *testing.T, fieldName, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

// TestHandleUploadPDF はアップロードが受理されジョブIDが返ることを確認します
func TestHandleUploadPDF(t *testing.T) {
	uploader := &fakeUploader{}
	handler := NewHandler(uploader, &fakeAnswerer{})

	body, contentType := multipartBody(t, "pdf", "report.pdf", "%PDF-1.4 fake")
	req := httptest.NewRequest(http.MethodPost, "/upload/pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "uploaded", resp.Message)
	assert.Equal(t, "a7f3c2d1-0000-4000-8000-000000000001", resp.JobID)

	assert.Equal(t, "report.pdf", uploader.lastFilename)
	assert.Equal(t, "%PDF-1.4 fake", string(uploader.lastContent))
}

// TestHandleUploadPDFMissingField はpdfフィールドなしで400になることを確認します
func TestHandleUploadPDFMissingField(t *testing.T) {
	handler := NewHandler(&fakeUploader{}, &fakeAnswerer{})

	body, contentType := multipartBody(t, "document", "report.pdf", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload/pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandleUploadPDFRejectsNonPDF は拡張子がpdf以外で400になることを確認します
func TestHandleUploadPDFRejectsNonPDF(t *testing.T) {
	uploader := &fakeUploader{}
	handler := NewHandler(uploader, &fakeAnswerer{})

	body, contentType := multipartBody(t, "pdf", "report.docx", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload/pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, uploader.lastFilename)
}

// TestHandleUploadPDFServiceError は受理失敗が汎用500になることを確認します
func TestHandleUploadPDFServiceError(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("disk full")}
	handler := NewHandler(uploader, &fakeAnswerer{})

	body, contentType := multipartBody(t, "pdf", "report.pdf", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload/pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// 内部エラーの詳細はレスポンスに含まれない
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Error, "disk full")
}

// TestHandleChat は質問が回答と根拠つきで返ることを確認します
func TestHandleChat(t *testing.T) {
	answerer := &fakeAnswerer{
		result: &chatapp.AskResult{
			Answer: "The calibration procedure is described in Document 1.",
			Sources: []vsdomain.SearchResult{
				{Text: "calibration steps", DocumentID: "uploads/123-report.pdf", SequenceIndex: 4, Score: 0.91},
			},
		},
	}
	handler := NewHandler(&fakeUploader{}, answerer)

	req := httptest.NewRequest(http.MethodGet, "/chat?message=how+do+I+calibrate+the+sensor%3F", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	// ユーザの質問文がそのままサービスに渡る
	assert.Equal(t, "how do I calibrate the sensor?", answerer.lastQuestion)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The calibration procedure is described in Document 1.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "uploads/123-report.pdf", resp.Sources[0].DocumentID)
	assert.Equal(t, 4, resp.Sources[0].SequenceIndex)
}

// TestHandleChatMissingMessage はmessageパラメータなしで400になることを確認します
func TestHandleChatMissingMessage(t *testing.T) {
	handler := NewHandler(&fakeUploader{}, &fakeAnswerer{})

	for _, target := range []string{"/chat", "/chat?message=", "/chat?message=%20%20"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()

		handler.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

// TestHandleChatQueryError はパイプライン失敗が汎用500になることを確認します
func TestHandleChatQueryError(t *testing.T) {
	answerer := &fakeAnswerer{
		err: &chatapp.QueryError{Stage: "search", Err: errors.New("store unavailable")},
	}
	handler := NewHandler(&fakeUploader{}, answerer)

	req := httptest.NewRequest(http.MethodGet, "/chat?message=anything", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Error, "store unavailable")
}

// TestHandleHealth はヘルスチェックが200を返すことを確認します
func TestHandleHealth(t *testing.T) {
	handler := NewHandler(&fakeUploader{}, &fakeAnswerer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
