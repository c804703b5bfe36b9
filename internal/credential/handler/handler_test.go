package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/credential/handler/mocks"
	"certledger/internal/credential/models"
	"certledger/internal/credential/service"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/metadata"
	"certledger/internal/mint"
	"certledger/internal/platform/middleware"
	dErrors "certledger/pkg/domain-errors"
)

const adminToken = "secret-token"

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.now = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequireAdminToken(adminToken, logger))
	New(s.service, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminToken)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) record(code string) *models.Credential {
	c, err := models.NewCredential(code, metadata.Credential{SubjectName: "Ana Silva", Program: "Law"}, "", s.now)
	s.Require().NoError(err)
	return c
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, expectedCode, body["error"])
}

func (s *HandlerSuite) TestAdminTokenRequired() {
	req := httptest.NewRequest(http.MethodGet, "/credentials/UNI-2024-ABC123", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusUnauthorized, w.Code)
	assertErrorResponse(s.T(), w, string(dErrors.CodeUnauthorized))
}

func (s *HandlerSuite) TestCreate() {
	s.T().Run("created", func(t *testing.T) {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ any, req service.CreateRequest) (*models.Credential, error) {
			s.Equal("uni-2024-abc123", req.Code)
			s.Equal("Ana Silva", req.Metadata.SubjectName)
			return s.record("UNI-2024-ABC123"), nil
		})

		w := s.do(http.MethodPost, "/credentials", `{"credentialCode":" uni-2024-abc123 ","metadata":{"studentName":" Ana Silva ","program":"Law"}}`)
		s.Equal(http.StatusCreated, w.Code)
		s.Contains(w.Body.String(), `"credentialCode":"UNI-2024-ABC123"`)
	})

	s.T().Run("duplicate maps to 409", func(t *testing.T) {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeDuplicate, "exists"))
		w := s.do(http.MethodPost, "/credentials", `{"metadata":{"studentName":"Ana","program":"Law"}}`)
		s.Equal(http.StatusConflict, w.Code)
		assertErrorResponse(t, w, string(dErrors.CodeDuplicate))
	})

	s.T().Run("oversized code is rejected by the handler", func(t *testing.T) {
		w := s.do(http.MethodPost, "/credentials", `{"credentialCode":"`+string(bytes.Repeat([]byte("A"), 41))+`","metadata":{}}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestGet() {
	s.service.EXPECT().Get(gomock.Any(), "UNI-2024-ZZZ000").Return(nil, dErrors.New(dErrors.CodeNotFound, "credential UNI-2024-ZZZ000 not found"))
	w := s.do(http.MethodGet, "/credentials/UNI-2024-ZZZ000", "")
	s.Equal(http.StatusNotFound, w.Code)
	assertErrorResponse(s.T(), w, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestList() {
	s.T().Run("passes filter", func(t *testing.T) {
		s.service.EXPECT().List(gomock.Any(), store.ListFilter{Status: models.StatusRevoked, Limit: 10, Offset: 20}).Return(nil, nil)
		w := s.do(http.MethodGet, "/credentials?status=REVOKED&limit=10&offset=20", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"credentials":[]`)
	})

	s.T().Run("unknown status maps to 400", func(t *testing.T) {
		s.service.EXPECT().List(gomock.Any(), store.ListFilter{Status: models.Status("pending")}).
			Return(nil, dErrors.New(dErrors.CodeValidation, "status must be issued or revoked"))
		w := s.do(http.MethodGet, "/credentials?status=pending", "")
		s.Equal(http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, string(dErrors.CodeValidation))
	})

	s.T().Run("bad limit", func(t *testing.T) {
		w := s.do(http.MethodGet, "/credentials?limit=-1", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestRevoke() {
	s.T().Run("requires a reason", func(t *testing.T) {
		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/revoke", `{"reason":"  "}`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), "reason must not be blank")
	})

	s.T().Run("revoked", func(t *testing.T) {
		c := s.record("UNI-2024-ABC123")
		c.Revoke("issued in error", s.now)
		s.service.EXPECT().Revoke(gomock.Any(), "UNI-2024-ABC123", "issued in error").Return(c, nil)

		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/revoke", `{"reason":"issued in error"}`)
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"revoked"`)
	})
}

func (s *HandlerSuite) TestIssue() {
	s.T().Run("confirmed mint", func(t *testing.T) {
		c := s.record("UNI-2024-ABC123")
		minted := s.now
		c.AttachMint("pol", "pol.asset", "tx", &minted, s.now)
		s.service.EXPECT().Issue(gomock.Any(), "UNI-2024-ABC123").Return(service.IssueOutcome{
			Code: c.Code, Credential: c, Mint: &mint.Result{Success: true, TxHash: "tx", AssetID: "pol.asset"},
		})

		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/issue", "")
		s.Equal(http.StatusOK, w.Code)
		var body IssueResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
		s.Equal(models.MintConfirmed, body.Credential.MintState)
		s.True(body.Mint.Success)
	})

	s.T().Run("pending mint is accepted", func(t *testing.T) {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(service.IssueOutcome{
			Code: "UNI-2024-ABC123", Mint: &mint.Result{ErrorKind: dErrors.CodePending, TxHash: "tx"},
		})
		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/issue", "")
		s.Equal(http.StatusAccepted, w.Code)
	})

	s.T().Run("failed mint reports kind", func(t *testing.T) {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(service.IssueOutcome{
			Code: "UNI-2024-ABC123", Mint: &mint.Result{ErrorKind: dErrors.CodeWallet, ErrorReason: dErrors.ReasonInsufficientFunds},
		})
		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/issue", "")
		s.Equal(http.StatusPaymentRequired, w.Code)
	})

	s.T().Run("revoked record is refused", func(t *testing.T) {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(service.IssueOutcome{
			Code: "UNI-2024-ABC123", Err: dErrors.New(dErrors.CodeValidation, "credential UNI-2024-ABC123 is revoked"),
		})
		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/issue", "")
		s.Equal(http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, string(dErrors.CodeValidation))
	})

	s.T().Run("broadcast but unrecorded is a 500 with identifiers", func(t *testing.T) {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(service.IssueOutcome{
			Code: "UNI-2024-ABC123",
			Mint: &mint.Result{Success: true, TxHash: "tx"},
			Err:  dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "minted in tx but failed to record the result"),
		})
		w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/issue", "")
		s.Equal(http.StatusInternalServerError, w.Code)
		s.Contains(w.Body.String(), `"txHash":"tx"`)
	})
}

func (s *HandlerSuite) TestIssueBatch() {
	s.service.EXPECT().IssueBatch(gomock.Any(), []string{"UNI-2024-AAA111", "bad"}).Return([]service.IssueOutcome{
		{Code: "UNI-2024-AAA111", Mint: &mint.Result{Success: true}},
		{Code: "bad", Err: dErrors.New(dErrors.CodeValidation, "credential code bad is malformed")},
	})

	w := s.do(http.MethodPost, "/credentials/issue-batch", `{"codes":["UNI-2024-AAA111","bad"]}`)
	s.Equal(http.StatusOK, w.Code)
	var body IssueBatchResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Require().Len(body.Results, 2)
	s.Empty(body.Results[0].Error)
	s.Equal(dErrors.CodeValidation, body.Results[1].ErrorKind)

	w = s.do(http.MethodPost, "/credentials/issue-batch", `{"codes":[]}`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestConfirm() {
	c := s.record("UNI-2024-ABC123")
	c.AttachMint("pol", "pol.asset", "tx", nil, s.now)
	s.service.EXPECT().ConfirmPending(gomock.Any(), "UNI-2024-ABC123").
		Return(c, dErrors.NewReason(dErrors.CodePending, dErrors.ReasonNotFound, "not yet included"))

	w := s.do(http.MethodPost, "/credentials/UNI-2024-ABC123/confirm", "")
	s.Equal(http.StatusAccepted, w.Code)
	s.Contains(w.Body.String(), `"mintState":"pending"`)
}
