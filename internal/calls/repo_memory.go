package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and early development.
// It enforces the same invariants as the Postgres implementation:
// additive contact merge, forward-only call status, append-only messages.
type MemoryStore struct {
	mu sync.Mutex

	Campaigns map[string]Campaign
	Contacts  map[string]Contact
	Calls     map[string]Call
	Messages  map[string][]CallMessage

	Clock func() time.Time

	// seq disambiguates message ordering when the clock does not advance
	// between two appends.
	seq int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Campaigns: map[string]Campaign{},
		Contacts:  map[string]Contact{},
		Calls:     map[string]Call{},
		Messages:  map[string][]CallMessage{},
		Clock:     time.Now,
	}
}

func (s *MemoryStore) now() time.Time { return s.Clock().UTC() }

func (s *MemoryStore) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetContact(ctx context.Context, id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetContactByPhone(ctx context.Context, phone string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Contacts {
		if c.Phone == phone {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (s *MemoryStore) CreateContact(ctx context.Context, c Contact) (Contact, error) {
	if c.Phone == "" {
		return Contact{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Converge on the existing row keyed by phone, merging additively.
	for id, existing := range s.Contacts {
		if existing.Phone != c.Phone {
			continue
		}
		merged := existing
		if c.Name != "" {
			merged.Name = c.Name
		}
		if c.Email != "" {
			merged.Email = c.Email
		}
		if c.WhatsAppNumber != "" {
			merged.WhatsAppNumber = c.WhatsAppNumber
		}
		if c.Interest != "" {
			merged.Interest = c.Interest
		}
		merged.UpdatedAt = now
		s.Contacts[id] = merged
		return merged, nil
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.Contacts[c.ID] = c
	return c, nil
}

func (s *MemoryStore) UpdateContact(ctx context.Context, id string, patch ContactPatch) (Contact, error) {
	if id == "" {
		return Contact{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.WhatsAppNumber != nil {
		c.WhatsAppNumber = *patch.WhatsAppNumber
	}
	if patch.Interest != nil {
		c.Interest = *patch.Interest
	}
	c.UpdatedAt = s.now()
	s.Contacts[id] = c
	return c, nil
}

func (s *MemoryStore) CreateCall(ctx context.Context, c Call) (Call, error) {
	if c.CampaignID == "" || c.CarrierCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c.CallID == "" {
		c.CallID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CallStatusInitiated
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.Calls[c.CallID] = c
	return c, nil
}

func (s *MemoryStore) GetCall(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetCallByCarrierID(ctx context.Context, carrierCallID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Calls {
		if c.CarrierCallID == carrierCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) UpdateCall(ctx context.Context, id string, patch CallPatch) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if patch.Status != nil && *patch.Status != c.Status {
		if !c.Status.CanTransition(*patch.Status) {
			return Call{}, ErrStatusRegression
		}
		c.Status = *patch.Status
	}
	if patch.DurationSeconds != nil {
		c.DurationSeconds = *patch.DurationSeconds
	}
	if patch.ConversationSummary != nil {
		c.ConversationSummary = *patch.ConversationSummary
	}
	if patch.SuccessScore != nil {
		c.SuccessScore = *patch.SuccessScore
	}
	if patch.WhatsAppSent != nil {
		c.WhatsAppSent = *patch.WhatsAppSent
	}
	if patch.CollectedData != nil {
		c.CollectedData = *patch.CollectedData
	}
	if patch.ContactID != nil {
		c.ContactID = *patch.ContactID
	}
	c.UpdatedAt = s.now()
	s.Calls[id] = c
	return c, nil
}

func (s *MemoryStore) CreateCallMessage(ctx context.Context, callID string, role Role, content string) (CallMessage, error) {
	if callID == "" || (role != RoleUser && role != RoleAssistant) {
		return CallMessage{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	m := CallMessage{
		ID:        uuid.NewString(),
		CallID:    callID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().Add(time.Duration(s.seq) * time.Nanosecond),
	}
	s.Messages[callID] = append(s.Messages[callID], m)
	return m, nil
}

func (s *MemoryStore) ListCallMessages(ctx context.Context, callID string) ([]CallMessage, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CallMessage, len(s.Messages[callID]))
	copy(out, s.Messages[callID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
