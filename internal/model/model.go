// Package model contains the domain entities of the huduma marketplace.
package model

import "time"

// FieldKind enumerates the input kinds a service form can declare.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindNumber   FieldKind = "number"
	FieldKindDate     FieldKind = "date"
	FieldKindFile     FieldKind = "file"
	FieldKindTextarea FieldKind = "textarea"
	FieldKindSelect   FieldKind = "select"
)

// FieldDescriptor declares one input of a service application form.
// Order of descriptors within a service defines collection order.
type FieldDescriptor struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Kind       FieldKind `json:"type"`
	Required   bool      `json:"required"`
	HelperText string    `json:"helperText,omitempty"`
	Options    []string  `json:"options,omitempty"`
}

// ServiceDefinition describes one purchasable service of the catalog.
type ServiceDefinition struct {
	ID           string            `json:"id"`
	Slug         string            `json:"slug"`
	Category     string            `json:"category"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	BaseCost     int64             `json:"baseCost"`
	PlatformFee  int64             `json:"platformFee"`
	Requirements []string          `json:"requirements,omitempty"`
	Turnaround   string            `json:"turnaround,omitempty"`
	FieldSchema  []FieldDescriptor `json:"formFields"`
}

// TotalCost is the amount an applicant owes at submission time.
func (s *ServiceDefinition) TotalCost() int64 {
	return s.BaseCost + s.PlatformFee
}

// FieldByID returns the descriptor with the given field id.
func (s *ServiceDefinition) FieldByID(id string) (FieldDescriptor, bool) {
	for _, f := range s.FieldSchema {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// ApplicationStatus describes the processing status of an application.
type ApplicationStatus string

const (
	StatusPendingPayment ApplicationStatus = "pending_payment"
	StatusProcessing     ApplicationStatus = "processing"
	StatusCompleted      ApplicationStatus = "completed"
	StatusRejected       ApplicationStatus = "rejected"
)

// ValidStatus reports whether s is one of the known application statuses.
func ValidStatus(s ApplicationStatus) bool {
	switch s {
	case StatusPendingPayment, StatusProcessing, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether the payment flow may move an application
// from one status to another. Operator overrides bypass this check: an
// operator may force processing, completed or rejected from any state.
func CanTransition(from, to ApplicationStatus) bool {
	switch from {
	case StatusPendingPayment:
		return to == StatusProcessing || to == StatusRejected
	case StatusProcessing:
		return to == StatusCompleted
	}
	return false
}

// Applicant holds the contact identity captured with every application.
type Applicant struct {
	FullName         string `json:"fullName"`
	PhoneNumber      string `json:"phoneNumber"`
	NationalIDNumber string `json:"idNumber"`
}

// FieldValue is a tagged value submitted for one form field. The kind is
// copied from the owning descriptor at validation time so readers never
// have to guess whether a string is a file reference.
type FieldValue struct {
	Kind  FieldKind `json:"kind"`
	Value string    `json:"value"`
}

// Application is one applicant's submitted request against a service.
type Application struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"userId"`
	ServiceRef           string                `json:"serviceId"`
	ServiceTitleSnapshot string                `json:"serviceTitle"`
	Applicant            Applicant             `json:"applicant"`
	FieldValues          map[string]FieldValue `json:"fieldValues"`
	AmountDue            int64                 `json:"amountDue"`
	Status               ApplicationStatus     `json:"status"`
	OperatorNotes        string                `json:"adminNotes"`
	PaymentRef           string                `json:"paymentRef,omitempty"`
	SubmittedAt          time.Time             `json:"submittedAt"`
}
