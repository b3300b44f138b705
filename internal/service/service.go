// Package service implements the business logic of the huduma
// marketplace: application assembly and validation, the payment
// correlation protocol and operator actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hudumahub/huduma-system/internal/catalog"
	"github.com/hudumahub/huduma-system/internal/model"
	"github.com/hudumahub/huduma-system/internal/mpesa"
	"github.com/hudumahub/huduma-system/internal/repository"
	"github.com/hudumahub/huduma-system/internal/validation"
)

// accountRefPrefix plus five id characters stays within the gateway's
// 12-character reference limit.
const accountRefPrefix = "HUDUMA-"

// ValidationError reports a missing or malformed submission input. The
// field names the offending input using its display label.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// ErrPaymentDispatchFailed marks a push the gateway refused to dispatch.
// The application record survives and payment can be retried.
var ErrPaymentDispatchFailed = errors.New("payment dispatch failed")

// Repository is the data access contract used by the service.
type Repository interface {
	Close() error
	UpsertService(ctx context.Context, def model.ServiceDefinition) (*model.ServiceDefinition, error)
	GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, bool, error)
	ListServices(ctx context.Context) ([]model.ServiceDefinition, error)
	DeleteService(ctx context.Context, id string) error
	CreateApplication(ctx context.Context, app *model.Application) (string, error)
	GetApplicationByID(ctx context.Context, id string) (*model.Application, error)
	GetApplicationByPaymentRef(ctx context.Context, ref string) (*model.Application, error)
	ListApplications(ctx context.Context) ([]model.Application, error)
	SetPaymentRef(ctx context.Context, id, ref string) error
	ApplyPaymentOutcome(ctx context.Context, id string, status model.ApplicationStatus, noteAppend string) error
	UpdateStatusAndNotes(ctx context.Context, id string, status *model.ApplicationStatus, notes *string) error
}

// PaymentGateway dispatches push-payment requests.
type PaymentGateway interface {
	InitiateSTKPush(ctx context.Context, msisdn string, amount int64, accountRef string) (*mpesa.StkPushResponse, error)
}

// Notifier delivers best-effort operator alerts.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DedupeStore remembers processed gateway receipts.
type DedupeStore interface {
	FirstSeen(ctx context.Context, receiptID string) bool
}

// Service wires the marketplace business logic together.
type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	gateway  PaymentGateway
	notifier Notifier
	dedupe   DedupeStore
	logger   *zap.Logger
}

// NewService creates the service. The gateway, notifier and dedupe store
// may be nil; the corresponding steps then degrade to soft no-ops.
func NewService(repo Repository, cat *catalog.Catalog, gateway PaymentGateway, notifier Notifier, dd DedupeStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		catalog:  cat,
		gateway:  gateway,
		notifier: notifier,
		dedupe:   dd,
		logger:   logger,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetServiceBySlug resolves a catalog entry, override first.
func (s *Service) GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, error) {
	return s.catalog.GetBySlug(ctx, slug)
}

// ListServices returns the merged catalog view.
func (s *Service) ListServices(ctx context.Context) ([]model.ServiceDefinition, error) {
	return s.catalog.List(ctx)
}

// UpsertService validates and saves an operator-edited service.
func (s *Service) UpsertService(ctx context.Context, def model.ServiceDefinition) (*model.ServiceDefinition, error) {
	prepared, err := catalog.PrepareUpsert(def)
	if err != nil {
		return nil, err
	}
	return s.repo.UpsertService(ctx, prepared)
}

// ServicePatch is a partial catalog edit. Nil fields stay unchanged.
type ServicePatch struct {
	Title        *string
	Slug         *string
	Category     *string
	Description  *string
	BaseCost     *int64
	PlatformFee  *int64
	Requirements *[]string
	Turnaround   *string
	FieldSchema  *[]model.FieldDescriptor
}

// PatchService applies a partial edit to the service with the given id.
// The base may be an operator override or a bundled default; the merged
// result is validated and saved as an override either way.
func (s *Service) PatchService(ctx context.Context, id string, patch ServicePatch) (*model.ServiceDefinition, error) {
	services, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	var base *model.ServiceDefinition
	for i := range services {
		if services[i].ID == id {
			base = &services[i]
			break
		}
	}
	if base == nil {
		return nil, catalog.ErrNotFound
	}

	merged := *base
	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.Slug != nil {
		merged.Slug = *patch.Slug
	}
	if patch.Category != nil {
		merged.Category = *patch.Category
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.BaseCost != nil {
		merged.BaseCost = *patch.BaseCost
	}
	if patch.PlatformFee != nil {
		merged.PlatformFee = *patch.PlatformFee
	}
	if patch.Requirements != nil {
		merged.Requirements = *patch.Requirements
	}
	if patch.Turnaround != nil {
		merged.Turnaround = *patch.Turnaround
	}
	if patch.FieldSchema != nil {
		merged.FieldSchema = *patch.FieldSchema
	}

	return s.UpsertService(ctx, merged)
}

// DeleteService removes an operator-edited service. Applications keep
// their service title snapshot, so history is unaffected.
func (s *Service) DeleteService(ctx context.Context, id string) error {
	return s.repo.DeleteService(ctx, id)
}

// SeedDefaults copies the bundled catalog into the override store and
// returns the number of services written.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	defaults := catalog.Defaults()
	for _, def := range defaults {
		if _, err := s.repo.UpsertService(ctx, def); err != nil {
			return 0, fmt.Errorf("seed %s: %w", def.Slug, err)
		}
	}
	return len(defaults), nil
}

// Submission is an applicant's raw input for one service.
type Submission struct {
	ServiceSlug string
	UserID      string
	Applicant   model.Applicant
	Notes       string
	RawValues   map[string]string
	Documents   []string
}

// SubmissionResult reports the outcome of a submission. PaymentErr is a
// soft failure: the application exists regardless and payment can be
// retried out of band.
type SubmissionResult struct {
	ApplicationID  string
	AmountDue      int64
	STKSent        bool
	PaymentMessage string
	PaymentErr     error
}

// SubmitApplication validates raw input against the service schema,
// persists exactly one application and hands off to the payment
// correlation protocol. Validation happens before any write; a
// validation failure leaves no record behind.
func (s *Service) SubmitApplication(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	if strings.TrimSpace(sub.Applicant.FullName) == "" {
		return nil, &ValidationError{Field: "fullName"}
	}
	if strings.TrimSpace(sub.Applicant.PhoneNumber) == "" {
		return nil, &ValidationError{Field: "phoneNumber"}
	}
	if strings.TrimSpace(sub.Applicant.NationalIDNumber) == "" {
		return nil, &ValidationError{Field: "idNumber"}
	}

	def, err := s.catalog.GetBySlug(ctx, sub.ServiceSlug)
	if err != nil {
		return nil, err
	}

	values, err := assembleFieldValues(def, sub.RawValues)
	if err != nil {
		return nil, err
	}
	for i, url := range sub.Documents {
		values[fmt.Sprintf("document_%d", i+1)] = model.FieldValue{Kind: model.FieldKindFile, Value: url}
	}

	app := &model.Application{
		UserID:               sub.UserID,
		ServiceRef:           def.ID,
		ServiceTitleSnapshot: def.Title,
		Applicant:            sub.Applicant,
		FieldValues:          values,
		AmountDue:            def.TotalCost(),
		Status:               model.StatusPendingPayment,
		OperatorNotes:        sub.Notes,
	}

	id, err := s.repo.CreateApplication(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	result := &SubmissionResult{
		ApplicationID: id,
		AmountDue:     app.AmountDue,
	}

	s.initiatePayment(ctx, id, sub.Applicant.PhoneNumber, app.AmountDue, result)

	return result, nil
}

// assembleFieldValues walks the schema in declaration order, fails fast
// on the first missing required field and tags every accepted value with
// the descriptor's kind. Keys outside the schema are dropped.
func assembleFieldValues(def *model.ServiceDefinition, raw map[string]string) (map[string]model.FieldValue, error) {
	values := make(map[string]model.FieldValue, len(def.FieldSchema))

	for _, field := range def.FieldSchema {
		v, ok := raw[field.ID]
		if field.Required && (!ok || strings.TrimSpace(v) == "") {
			return nil, &ValidationError{Field: field.Label}
		}
		if !ok || v == "" {
			continue
		}
		values[field.ID] = model.FieldValue{Kind: field.Kind, Value: v}
	}

	return values, nil
}

// initiatePayment runs the payment hand-off. Every failure here is soft:
// it lands in the result, never in the submission outcome.
func (s *Service) initiatePayment(ctx context.Context, id, phone string, amount int64, result *SubmissionResult) {
	if s.gateway == nil {
		result.PaymentMessage = "Payment skipped (gateway not configured)"
		return
	}

	msisdn, err := validation.NormalizeMSISDN(phone)
	if err != nil {
		result.PaymentErr = err
		result.PaymentMessage = "Invalid M-Pesa number. Must be a Safaricom number starting with 07 or 01."
		return
	}

	resp, err := s.gateway.InitiateSTKPush(ctx, msisdn, amount, AccountReference(id))
	if err != nil {
		result.PaymentErr = err
		result.PaymentMessage = "Payment trigger error: " + err.Error()
		s.logger.Error("stk push failed", zap.String("applicationID", id), zap.Error(err))
		return
	}

	if !resp.Accepted() {
		result.PaymentErr = fmt.Errorf("%w: %s", ErrPaymentDispatchFailed, resp.FailureReason())
		result.PaymentMessage = "M-Pesa failed: " + resp.FailureReason()
		return
	}

	// The dispatch-accepted response carries the token the gateway will
	// use in its callback. Saved through the elevated repository path.
	if err := s.repo.SetPaymentRef(ctx, id, resp.CheckoutRequestID); err != nil {
		s.logger.Error("failed to save payment ref",
			zap.String("applicationID", id),
			zap.String("checkoutRequestID", resp.CheckoutRequestID),
			zap.Error(err))
	}

	result.STKSent = true
	result.PaymentMessage = "M-Pesa STK sent to phone"
}

// AccountReference derives the short gateway reference from an
// application id. Collisions across truncated ids are operationally
// negligible, not impossible.
func AccountReference(id string) string {
	ref := accountRefPrefix + id
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}

// ApplyCallback is the pure transition of the payment reconciliation:
// given the current status and a gateway callback it returns the new
// status and the system note to append. ok is false when the callback
// must not be applied (e.g. a failure report for an application that
// already left pending_payment).
func ApplyCallback(current model.ApplicationStatus, cb *mpesa.StkCallback) (model.ApplicationStatus, string, bool) {
	if cb.Succeeded() {
		note := "\n[System]: Payment Confirmed. Receipt: " + cb.ReceiptNumber()
		ok := model.CanTransition(current, model.StatusProcessing) || current == model.StatusProcessing
		return model.StatusProcessing, note, ok
	}

	note := "\n[System]: Payment Failed. Reason: " + cb.ResultDesc
	ok := model.CanTransition(current, model.StatusRejected) || current == model.StatusRejected
	return model.StatusRejected, note, ok
}

// ProcessPaymentCallback reconciles an asynchronous gateway callback
// with the application its correlation token points at. Unknown tokens
// are a defined no-op. The returned error is for operator logging only;
// the HTTP boundary acknowledges the gateway regardless.
func (s *Service) ProcessPaymentCallback(ctx context.Context, cb *mpesa.StkCallback) error {
	app, err := s.repo.GetApplicationByPaymentRef(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("callback for unknown payment ref, dropping",
				zap.String("checkoutRequestID", cb.CheckoutRequestID))
			return nil
		}
		return fmt.Errorf("lookup application: %w", err)
	}

	if cb.Succeeded() && s.dedupe != nil && !s.dedupe.FirstSeen(ctx, cb.ReceiptNumber()) {
		s.logger.Info("duplicate payment callback, dropping",
			zap.String("receipt", cb.ReceiptNumber()),
			zap.String("applicationID", app.ID))
		return nil
	}

	status, note, ok := ApplyCallback(app.Status, cb)
	if !ok {
		s.logger.Info("callback ignored for current status",
			zap.String("applicationID", app.ID),
			zap.String("status", string(app.Status)),
			zap.Int("resultCode", cb.ResultCode))
		return nil
	}

	if err := s.repo.ApplyPaymentOutcome(ctx, app.ID, status, note); err != nil {
		return fmt.Errorf("apply payment outcome: %w", err)
	}

	s.notifyPaymentOutcome(ctx, app, cb)

	return nil
}

// notifyPaymentOutcome fires the operator alert. Failures are logged
// and swallowed; notification never fails reconciliation.
func (s *Service) notifyPaymentOutcome(ctx context.Context, app *model.Application, cb *mpesa.StkCallback) {
	if s.notifier == nil {
		return
	}

	var msg string
	if cb.Succeeded() {
		msg = fmt.Sprintf("✅ *NEW ORDER PAID*\n\n*Service:* %s\n*Applicant:* %s\n*Phone:* %s\n*Amount:* KES %s\n*Receipt:* `%s`\n\nLogin to the admin dashboard to process.",
			app.ServiceTitleSnapshot, app.Applicant.FullName, app.Applicant.PhoneNumber, cb.AmountPaid(), cb.ReceiptNumber())
	} else {
		msg = fmt.Sprintf("❌ *Payment Failed*\nUser: %s\nReason: %s",
			app.Applicant.FullName, cb.ResultDesc)
	}

	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("operator notification failed", zap.Error(err))
	}
}

// ListApplications returns the normalized operator view.
func (s *Service) ListApplications(ctx context.Context) ([]model.Application, error) {
	return s.repo.ListApplications(ctx)
}

// GetApplication returns one application by id.
func (s *Service) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	return s.repo.GetApplicationByID(ctx, id)
}

// UpdateApplication applies an operator override. Operator action is
// authoritative: any valid status may be forced regardless of the
// payment outcome. Status and notes land in a single write.
func (s *Service) UpdateApplication(ctx context.Context, id string, status *model.ApplicationStatus, notes *string) error {
	if status == nil && notes == nil {
		return &ValidationError{Field: "status"}
	}
	if status != nil && !model.ValidStatus(*status) {
		return &ValidationError{Field: "status"}
	}
	return s.repo.UpdateStatusAndNotes(ctx, id, status, notes)
}
