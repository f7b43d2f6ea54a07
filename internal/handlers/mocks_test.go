package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/services"
)

// MockCirculationService is a mock implementation of CirculationServiceInterface
type MockCirculationService struct {
	mock.Mock
}

func (m *MockCirculationService) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutReceipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutReceipt), args.Error(1)
}

func (m *MockCirculationService) Checkin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckinResult), args.Error(1)
}

func (m *MockCirculationService) Renew(ctx context.Context, transactionID int64) (*models.RenewalResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RenewalResult), args.Error(1)
}

func (m *MockCirculationService) Reshelve(ctx context.Context, copyID int64, req models.ReshelveRequest) (*models.ReshelveResult, error) {
	args := m.Called(ctx, copyID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReshelveResult), args.Error(1)
}

func (m *MockCirculationService) MarkLost(ctx context.Context, copyID int64) (*models.LostResult, error) {
	args := m.Called(ctx, copyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LostResult), args.Error(1)
}

func (m *MockCirculationService) ListOverdue(ctx context.Context) ([]models.OverdueEntry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.OverdueEntry), args.Error(1)
}

func (m *MockCirculationService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

// MockReservationService is a mock implementation of ReservationServiceInterface
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) Get(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) Fulfill(ctx context.Context, reservationID int64) (*models.FulfillResult, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FulfillResult), args.Error(1)
}

func (m *MockReservationService) Cancel(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) ExpireOverdue(ctx context.Context) (*models.ExpireResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExpireResult), args.Error(1)
}

func (m *MockReservationService) Queue(ctx context.Context, itemID int64) ([]models.Reservation, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationService) ListByPatron(ctx context.Context, patronID int64) ([]models.Reservation, error) {
	args := m.Called(ctx, patronID)
	return args.Get(0).([]models.Reservation), args.Error(1)
}

// MockPatronService is a mock implementation of PatronServiceInterface
type MockPatronService struct {
	mock.Mock
}

func (m *MockPatronService) Register(ctx context.Context, req models.CreatePatronRequest) (*models.Patron, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Patron), args.Error(1)
}

func (m *MockPatronService) Get(ctx context.Context, id int64) (*models.Patron, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Patron), args.Error(1)
}

func (m *MockPatronService) List(ctx context.Context) ([]models.Patron, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Patron), args.Error(1)
}

func (m *MockPatronService) Update(ctx context.Context, id int64, req models.UpdatePatronRequest) (*models.Patron, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Patron), args.Error(1)
}

func (m *MockPatronService) Deactivate(ctx context.Context, id int64) (*models.Patron, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Patron), args.Error(1)
}

func (m *MockPatronService) Eligibility(ctx context.Context, id int64) (*models.EligibilityResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EligibilityResult), args.Error(1)
}

func (m *MockPatronService) Transactions(ctx context.Context, id int64, activeOnly bool) ([]models.Transaction, error) {
	args := m.Called(ctx, id, activeOnly)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

// MockFineService is a mock implementation of FineServiceInterface
type MockFineService struct {
	mock.Mock
}

func (m *MockFineService) Pay(ctx context.Context, fineID int64) (*services.SettlementResult, error) {
	args := m.Called(ctx, fineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SettlementResult), args.Error(1)
}

func (m *MockFineService) Waive(ctx context.Context, fineID int64, reason string) (*services.SettlementResult, error) {
	args := m.Called(ctx, fineID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SettlementResult), args.Error(1)
}

func (m *MockFineService) SettleBalance(ctx context.Context, patronID int64) (*services.SettlementResult, error) {
	args := m.Called(ctx, patronID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SettlementResult), args.Error(1)
}

func (m *MockFineService) List(ctx context.Context, patronID int64, unpaidOnly bool) ([]models.Fine, error) {
	args := m.Called(ctx, patronID, unpaidOnly)
	return args.Get(0).([]models.Fine), args.Error(1)
}

// MockCatalogService is a mock implementation of CatalogServiceInterface
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateBranch(ctx context.Context, req models.CreateBranchRequest) (*models.Branch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Branch), args.Error(1)
}

func (m *MockCatalogService) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Branch), args.Error(1)
}

func (m *MockCatalogService) ListBranches(ctx context.Context) ([]models.Branch, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Branch), args.Error(1)
}

func (m *MockCatalogService) SetMainBranch(ctx context.Context, id int64) (*models.Branch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Branch), args.Error(1)
}

func (m *MockCatalogService) DeleteBranch(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) CreateItem(ctx context.Context, req models.CreateItemRequest) (*models.LibraryItem, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LibraryItem), args.Error(1)
}

func (m *MockCatalogService) GetItem(ctx context.Context, id int64) (*models.LibraryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LibraryItem), args.Error(1)
}

func (m *MockCatalogService) ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error) {
	args := m.Called(ctx, category)
	return args.Get(0).([]models.LibraryItem), args.Error(1)
}

func (m *MockCatalogService) UpdateItem(ctx context.Context, id int64, req models.UpdateItemRequest) (*models.LibraryItem, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LibraryItem), args.Error(1)
}

func (m *MockCatalogService) CreateCopy(ctx context.Context, req models.CreateCopyRequest) (*models.ItemCopy, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItemCopy), args.Error(1)
}

func (m *MockCatalogService) GetCopy(ctx context.Context, id int64) (*models.ItemCopy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItemCopy), args.Error(1)
}

func (m *MockCatalogService) ListCopies(ctx context.Context, itemID int64) ([]models.ItemCopy, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).([]models.ItemCopy), args.Error(1)
}

func (m *MockCatalogService) DeleteCopy(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockAuthService is a mock implementation of AuthServiceInterface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoginResponse), args.Error(1)
}

func (m *MockAuthService) BlacklistToken(ctx context.Context, tokenString string) error {
	return m.Called(ctx, tokenString).Error(0)
}

// MockAuditor is a mock implementation of AuditorInterface
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Run(ctx context.Context) (*models.AuditReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditReport), args.Error(1)
}

// newTestRouter returns a gin engine whose requests carry the given staff role
func newTestRouter(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role != "" {
			c.Set("user_id", 1)
			c.Set("username", "tester")
			c.Set("user_role", role)
		}
		c.Next()
	})
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}
