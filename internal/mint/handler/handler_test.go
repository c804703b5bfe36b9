package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/mint"
	"certledger/internal/mint/handler/mocks"
	dErrors "certledger/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *HandlerSuite) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const validBody = `{"metadata":{"studentName":"Ana Silva","studentNumber":"STU2024001","program":"Law"}}`

func (s *HandlerSuite) TestMint() {
	s.T().Run("success returns 200 with identifiers", func(t *testing.T) {
		s.service.EXPECT().Mint(gomock.Any(), gomock.Any()).DoAndReturn(func(_ any, req mint.Request) mint.Result {
			s.Equal("Ana Silva", req.Metadata.SubjectName)
			return mint.Result{Success: true, TxHash: "ab", AssetID: "pol.name", PolicyID: "pol", Stage: mint.StageConfirmed}
		})

		w := s.post("/mint", validBody)
		s.Equal(http.StatusOK, w.Code)
		var res mint.Result
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.True(res.Success)
		s.Equal("ab", res.TxHash)
	})

	s.T().Run("failure status follows error kind", func(t *testing.T) {
		cases := []struct {
			res    mint.Result
			status int
		}{
			{mint.Result{ErrorKind: dErrors.CodeWallet, ErrorReason: dErrors.ReasonNoUTXO, Stage: mint.StageBuilding}, http.StatusPaymentRequired},
			{mint.Result{ErrorKind: dErrors.CodeWallet, ErrorReason: dErrors.ReasonUserCancelled, Stage: mint.StageSigning}, http.StatusConflict},
			{mint.Result{ErrorKind: dErrors.CodeNetwork, ErrorReason: dErrors.ReasonTimeout, Retryable: true}, http.StatusServiceUnavailable},
			{mint.Result{ErrorKind: dErrors.CodeLedger, ErrorReason: dErrors.ReasonRejected}, http.StatusUnprocessableEntity},
			{mint.Result{ErrorKind: dErrors.CodePending, TxHash: "ab"}, http.StatusAccepted},
			{mint.Result{ErrorKind: dErrors.CodeEncoding, ErrorReason: dErrors.ReasonAssetNameTooLong}, http.StatusBadRequest},
		}
		for _, tc := range cases {
			s.service.EXPECT().Mint(gomock.Any(), gomock.Any()).Return(tc.res)
			w := s.post("/mint", validBody)
			s.Equal(tc.status, w.Code, string(tc.res.ErrorKind)+"/"+string(tc.res.ErrorReason))
			s.Contains(w.Body.String(), `"errorKind":"`+string(tc.res.ErrorKind)+`"`)
		}
	})

	s.T().Run("malformed policy id is rejected before minting", func(t *testing.T) {
		w := s.post("/mint", `{"policyId":"xyz","metadata":{"studentName":"Ana"}}`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), "policyId")
	})

	s.T().Run("invalid json", func(t *testing.T) {
		w := s.post("/mint", `{`)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestBatchMint() {
	s.T().Run("returns results in order", func(t *testing.T) {
		s.service.EXPECT().BatchMint(gomock.Any(), gomock.Len(2)).Return([]mint.Result{
			{Success: true, TxHash: "a"},
			{ErrorKind: dErrors.CodeValidation, Error: "metadata.studentName is required"},
		})

		w := s.post("/mint/batch", `{"requests":[`+validBody+`,{"metadata":{}}]}`)
		s.Equal(http.StatusOK, w.Code)
		var body BatchResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
		s.Require().Len(body.Results, 2)
		s.True(body.Results[0].Success)
		s.Equal(dErrors.CodeValidation, body.Results[1].ErrorKind)
	})

	s.T().Run("empty batch", func(t *testing.T) {
		w := s.post("/mint/batch", `{"requests":[]}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.T().Run("oversized batch", func(t *testing.T) {
		items := strings.TrimSuffix(strings.Repeat(validBody+",", 51), ",")
		w := s.post("/mint/batch", `{"requests":[`+items+`]}`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), "too many requests")
	})
}
