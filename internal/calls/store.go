package calls

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	// ErrStatusRegression is returned when a call update would move status
	// backwards (e.g. completed -> active).
	ErrStatusRegression = errors.New("calls: status transition not allowed")
)

// Store is the persistence facade consumed by the orchestrator.
//
// IMPORTANT:
// - UpdateContact must be additive: nil patch fields are never written.
// - CreateCallMessage is append-only; there is no update or delete.
// - UpdateCall must reject backward status transitions (ErrStatusRegression).
type Store interface {
	GetCampaign(ctx context.Context, id string) (Campaign, error)

	GetContact(ctx context.Context, id string) (Contact, error)
	GetContactByPhone(ctx context.Context, phone string) (Contact, error)
	CreateContact(ctx context.Context, c Contact) (Contact, error)
	UpdateContact(ctx context.Context, id string, patch ContactPatch) (Contact, error)

	CreateCall(ctx context.Context, c Call) (Call, error)
	GetCall(ctx context.Context, id string) (Call, error)
	GetCallByCarrierID(ctx context.Context, carrierCallID string) (Call, error)
	UpdateCall(ctx context.Context, id string, patch CallPatch) (Call, error)

	CreateCallMessage(ctx context.Context, callID string, role Role, content string) (CallMessage, error)
	ListCallMessages(ctx context.Context, callID string) ([]CallMessage, error)
}
