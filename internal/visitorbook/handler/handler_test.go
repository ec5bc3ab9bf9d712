package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"visitorbook/internal/archive"
	"visitorbook/internal/platform/metrics"
	"visitorbook/internal/visitorbook/handler/mocks"
	"visitorbook/internal/visitorbook/models"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/testutil"
)

// =============================================================================
// Registry Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns request decoding, caller
// binding and the mapping of registry errors onto HTTP statuses and bodies.

var (
	owner = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
)

type tokens map[string]common.Address

func (t tokens) ValidateCaller(token string) (common.Address, error) {
	if addr, ok := t[token]; ok {
		return addr, nil
	}
	return common.Address{}, errors.New("invalid token")
}

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	archiver *mocks.MockArchiver
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.archiver = mocks.NewMockArchiver(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	h := New(s.service, s.archiver, tokens{"owner": owner, "alice": alice}, &owner, logger, m)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(req *http.Request, token string) *http.Response {
	return testutil.DoRequest(s.router, testutil.AsCaller(req, token)).Result()
}

func (s *HandlerSuite) TestSign() {
	s.Run("success returns 204", func() {
		s.service.EXPECT().
			Sign(gomock.Any(), models.CallContext{Caller: alice, Value: uint256.NewInt(100)}, "hello").
			Return(nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "hello", "payment": "100"})
		s.Equal(http.StatusNoContent, s.do(req, "alice").StatusCode)
	})

	s.Run("missing token returns 401", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "hello"})
		s.Equal(http.StatusUnauthorized, s.do(req, "").StatusCode)
	})

	s.Run("malformed payment returns 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "hi", "payment": "-1"})
		s.Equal(http.StatusBadRequest, s.do(req, "alice").StatusCode)
	})

	s.Run("unknown fields return 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "hi", "extra": "x"})
		s.Equal(http.StatusBadRequest, s.do(req, "alice").StatusCode)
	})

	s.Run("insufficient payment returns 402 with revert data", func() {
		s.service.EXPECT().Sign(gomock.Any(), gomock.Any(), "cheap").
			Return(&models.InsufficientPaymentError{Visitor: alice, Payment: uint256.NewInt(99)})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "cheap", "payment": "99"})
		rr := testutil.DoRequest(s.router, testutil.AsCaller(req, "alice"))

		testutil.AssertRevert(s.T(), rr, http.StatusPaymentRequired, string(dErrors.CodeInsufficientPayment))
	})

	s.Run("repeat visitor returns 409", func() {
		s.service.EXPECT().Sign(gomock.Any(), gomock.Any(), gomock.Any()).Return(&models.AlreadyVisitedError{})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "again", "payment": "100"})
		s.Equal(http.StatusConflict, s.do(req, "alice").StatusCode)
	})

	s.Run("failed reward returns 502", func() {
		s.service.EXPECT().Sign(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&models.TransferFailedError{Recipient: alice, Amount: uint256.NewInt(100)})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/visits", map[string]string{"message": "x", "payment": "100"})
		s.Equal(http.StatusBadGateway, s.do(req, "alice").StatusCode)
	})
}

func (s *HandlerSuite) TestInitialize() {
	s.Run("owner initializes", func() {
		s.service.EXPECT().Initialize(gomock.Any(), owner).Return(nil)

		req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/initialize")
		s.Equal(http.StatusNoContent, s.do(req, "owner").StatusCode)
	})

	s.Run("second initialize returns 409", func() {
		s.service.EXPECT().Initialize(gomock.Any(), owner).
			Return(dErrors.New(dErrors.CodeAlreadyInitialized, "registry already initialized"))

		req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/initialize")
		s.Equal(http.StatusConflict, s.do(req, "owner").StatusCode)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("total visitors", func() {
		s.service.EXPECT().TotalVisitors(gomock.Any()).Return(uint64(3), nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/visitors/count"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[TotalVisitorsResponse](s.T(), rr)
		s.Equal(uint64(3), resp.TotalVisitors)
	})

	s.Run("visitor at index", func() {
		s.service.EXPECT().VisitorAt(gomock.Any(), uint256.NewInt(0)).Return(alice, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/visitors/0"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[VisitorResponse](s.T(), rr)
		s.Equal("0", resp.Index)
		s.Equal(alice.Hex(), resp.Visitor)
	})

	s.Run("index out of bounds returns 404 with revert data", func() {
		s.service.EXPECT().VisitorAt(gomock.Any(), uint256.NewInt(5)).
			Return(common.Address{}, &models.IndexOutOfBoundsError{Index: uint256.NewInt(5), Total: 1})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/visitors/5"))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal(string(dErrors.CodeIndexOutOfBounds), body["error"])
		s.NotEmpty(body["revert_data"])
	})

	s.Run("non-numeric index returns 400", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/visitors/first"))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("has visited", func() {
		s.service.EXPECT().HasVisited(gomock.Any(), alice).Return(true, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/addresses/"+alice.Hex()+"/visited"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[VisitedResponse](s.T(), rr)
		s.True(resp.Visited)
	})

	s.Run("invalid address returns 400", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/addresses/0x12/visited"))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("fee before initialize returns 503", func() {
		s.service.EXPECT().Fee(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotInitialized, "registry not initialized"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/fee"))
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
	})

	s.Run("balance", func() {
		s.service.EXPECT().BalanceOf(gomock.Any(), alice).Return(uint256.NewInt(42), nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/"+alice.Hex()+"/balance"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[BalanceResponse](s.T(), rr)
		s.Equal("42", resp.Balance)
	})
}

func (s *HandlerSuite) TestAdmin() {
	s.Run("owner mints", func() {
		s.service.EXPECT().Mint(gomock.Any(), alice, uint256.NewInt(500)).Return(nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/accounts/"+alice.Hex()+"/mint", map[string]string{"amount": "500"})
		s.Equal(http.StatusNoContent, s.do(req, "owner").StatusCode)
	})

	s.Run("non-owner cannot mint", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/accounts/"+alice.Hex()+"/mint", map[string]string{"amount": "500"})
		s.Equal(http.StatusForbidden, s.do(req, "alice").StatusCode)
	})

	s.Run("owner exports a snapshot", func() {
		s.archiver.EXPECT().Export(gomock.Any()).Return(archive.Result{Key: "snapshots/x.json", TotalVisitors: 2}, nil)

		req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/admin/snapshots")
		rr := testutil.DoRequest(s.router, testutil.AsCaller(req, "owner"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
		s.Equal("snapshots/x.json", resp.Key)
	})
}
