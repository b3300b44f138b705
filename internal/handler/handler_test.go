package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hudumahub/huduma-system/internal/catalog"
	"github.com/hudumahub/huduma-system/internal/middleware"
	"github.com/hudumahub/huduma-system/internal/model"
	"github.com/hudumahub/huduma-system/internal/mpesa"
	"github.com/hudumahub/huduma-system/internal/repository"
	"github.com/hudumahub/huduma-system/internal/service"
)

type stubService struct {
	listResp []model.ServiceDefinition
	listErr  error

	getResp *model.ServiceDefinition
	getErr  error

	submitResp *service.SubmissionResult
	submitErr  error
	submitSub  service.Submission

	callbackCalls int
	callbackCB    *mpesa.StkCallback
	callbackErr   error

	applications []model.Application

	updateErr    error
	updateStatus *model.ApplicationStatus
	updateNotes  *string

	upsertResp *model.ServiceDefinition
	upsertErr  error

	patchID string
	patch   service.ServicePatch

	deleteErr error

	seedN   int
	seedErr error
}

func (s *stubService) ListServices(ctx context.Context) ([]model.ServiceDefinition, error) {
	return s.listResp, s.listErr
}

func (s *stubService) GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, error) {
	return s.getResp, s.getErr
}

func (s *stubService) SubmitApplication(ctx context.Context, sub service.Submission) (*service.SubmissionResult, error) {
	s.submitSub = sub
	return s.submitResp, s.submitErr
}

func (s *stubService) ProcessPaymentCallback(ctx context.Context, cb *mpesa.StkCallback) error {
	s.callbackCalls++
	s.callbackCB = cb
	return s.callbackErr
}

func (s *stubService) ListApplications(ctx context.Context) ([]model.Application, error) {
	return s.applications, nil
}

func (s *stubService) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	for i := range s.applications {
		if s.applications[i].ID == id {
			return &s.applications[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubService) UpdateApplication(ctx context.Context, id string, status *model.ApplicationStatus, notes *string) error {
	s.updateStatus = status
	s.updateNotes = notes
	return s.updateErr
}

func (s *stubService) UpsertService(ctx context.Context, def model.ServiceDefinition) (*model.ServiceDefinition, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	if s.upsertResp != nil {
		return s.upsertResp, nil
	}
	return &def, nil
}

func (s *stubService) PatchService(ctx context.Context, id string, patch service.ServicePatch) (*model.ServiceDefinition, error) {
	s.patchID = id
	s.patch = patch
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	if s.upsertResp != nil {
		return s.upsertResp, nil
	}
	return &model.ServiceDefinition{ID: id}, nil
}

func (s *stubService) DeleteService(ctx context.Context, id string) error {
	return s.deleteErr
}

func (s *stubService) SeedDefaults(ctx context.Context) (int, error) {
	return s.seedN, s.seedErr
}

func newTestHandler(t *testing.T, svc Service) (*Handler, *middleware.AuthMiddleware) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret", []string{"admin@example.com"})

	return NewHandler(svc, logger, auth), auth
}

func bearerToken(t *testing.T, auth *middleware.AuthMiddleware, userID, email string) string {
	t.Helper()
	token, err := auth.IssueToken(userID, email)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func TestListServices(t *testing.T) {
	svc := &stubService{listResp: catalog.Defaults()}
	h, _ := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got []model.ServiceDefinition
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != len(catalog.Defaults()) {
		t.Fatalf("got %d services, want %d", len(got), len(catalog.Defaults()))
	}
}

func TestGetService_NotFound(t *testing.T) {
	svc := &stubService{getErr: catalog.ErrNotFound}
	h, _ := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/services/no-such", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestSubmitApplication_RequiresAuth(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSubmitApplication_Success(t *testing.T) {
	svc := &stubService{
		submitResp: &service.SubmissionResult{
			ApplicationID:  "app-1",
			AmountDue:      2650,
			STKSent:        true,
			PaymentMessage: "M-Pesa STK sent to phone",
		},
	}
	h, auth := newTestHandler(t, svc)

	body, _ := json.Marshal(submitRequest{
		ServiceID: "passport-application",
		ApplicantData: applicantData{
			FullName:     "Jane Wanjiku",
			PhoneNumber:  "0712345678",
			IDNumber:     "12345678",
			CustomFields: map[string]string{"occupation": "Teacher"},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/applications", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, auth, "user-7", "jane@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var got submitResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Success || got.ApplicationID != "app-1" || got.AmountDue != 2650 {
		t.Fatalf("unexpected response: %+v", got)
	}

	if svc.submitSub.UserID != "user-7" {
		t.Fatalf("user id not taken from token, got %q", svc.submitSub.UserID)
	}
	if svc.submitSub.Applicant.FullName != "Jane Wanjiku" || svc.submitSub.RawValues["occupation"] != "Teacher" {
		t.Fatalf("applicant data not forwarded: %+v", svc.submitSub)
	}
}

func TestUpdateService_PartialPatch(t *testing.T) {
	svc := &stubService{}
	h, auth := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/services/kra-pin-reg",
		strings.NewReader(`{"baseCost":600}`))
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if svc.patchID != "kra-pin-reg" {
		t.Fatalf("patch id = %q", svc.patchID)
	}
	if svc.patch.BaseCost == nil || *svc.patch.BaseCost != 600 {
		t.Fatalf("base cost patch not forwarded: %+v", svc.patch)
	}
	if svc.patch.Title != nil {
		t.Fatalf("absent fields must stay nil, got title %v", *svc.patch.Title)
	}
}

func TestSubmitApplication_ValidationError(t *testing.T) {
	svc := &stubService{
		submitErr: &service.ValidationError{Field: "Occupation"},
	}
	h, auth := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(`{"serviceId":"x"}`))
	req.Header.Set("Authorization", bearerToken(t, auth, "user-7", "jane@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}

	var got errorResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Success || !strings.Contains(got.Message, "Occupation") {
		t.Fatalf("error must name the field, got %+v", got)
	}
}

func TestMpesaCallback_AlwaysAcks(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantResult  string
		wantProcess int
	}{
		{
			name: "valid success callback",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
				"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"SBC12XYZ"}]}}}}`,
			wantResult:  "ok",
			wantProcess: 1,
		},
		{
			name:        "invalid payload",
			body:        `{"hello":"world"}`,
			wantResult:  "invalid payload",
			wantProcess: 0,
		},
		{
			name:        "broken json",
			body:        `{{{`,
			wantResult:  "invalid payload",
			wantProcess: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h, _ := newTestHandler(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/api/payments/mpesa/callback", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.SetupRouter().ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				t.Fatalf("gateway must always get 200, got %d", res.StatusCode)
			}

			var ack callbackAck
			if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if ack.Result != tt.wantResult {
				t.Fatalf("ack result = %q, want %q", ack.Result, tt.wantResult)
			}
			if svc.callbackCalls != tt.wantProcess {
				t.Fatalf("callback processed %d times, want %d", svc.callbackCalls, tt.wantProcess)
			}
		})
	}
}

func TestMpesaCallback_AcksEvenWhenProcessingFails(t *testing.T) {
	svc := &stubService{callbackErr: context.DeadlineExceeded}
	h, _ := newTestHandler(t, svc)

	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"cancelled"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/mpesa/callback", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("gateway must get 200 even on processing failure, got %d", rec.Result().StatusCode)
	}
}

func TestAdminRoutes_RequireOperator(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/applications", nil)
	req.Header.Set("Authorization", bearerToken(t, auth, "user-7", "jane@example.com"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("non-operator status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/applications", nil)
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("operator status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
}

func TestUpdateApplication_InvalidStatus(t *testing.T) {
	svc := &stubService{updateErr: &service.ValidationError{Field: "status"}}
	h, auth := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/applications/app-1", strings.NewReader(`{"status":"shipped"}`))
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestUpdateApplication_Override(t *testing.T) {
	svc := &stubService{}
	h, auth := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/applications/app-1",
		strings.NewReader(`{"status":"completed","adminNotes":"Collected"}`))
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if svc.updateStatus == nil || *svc.updateStatus != model.StatusCompleted {
		t.Fatalf("status override not forwarded")
	}
	if svc.updateNotes == nil || *svc.updateNotes != "Collected" {
		t.Fatalf("notes not forwarded")
	}
}

func TestUpsertService_DuplicateSlug(t *testing.T) {
	svc := &stubService{upsertErr: repository.ErrDuplicateSlug}
	h, auth := newTestHandler(t, svc)

	body, _ := json.Marshal(model.ServiceDefinition{Title: "Passport", Category: "Immigration"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/services", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestSeedServices(t *testing.T) {
	svc := &stubService{seedN: 10}
	h, auth := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/services/seed", nil)
	req.Header.Set("Authorization", bearerToken(t, auth, "admin-1", "admin@example.com"))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got seedResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Seeded != 10 {
		t.Fatalf("seeded = %d, want 10", got.Seeded)
	}
}
