package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceagent-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore implements Store on database/sql over the pgx stdlib driver.
//
// NOTE: This repository assumes the following tables exist:
// - campaigns
// - contacts (UNIQUE index on phone)
// - calls (UNIQUE index on carrier_call_id)
// - call_messages (append-only)
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	const q = `
SELECT id, name, intro_line, objective, language, voice, created_at
FROM campaigns
WHERE id = $1
`
	var c Campaign
	if err := s.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID,
		&c.Name,
		&c.IntroLine,
		&c.Objective,
		&c.Language,
		&c.Voice,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (Contact, error) {
	const q = contactSelect + ` WHERE id = $1`
	return s.scanContact(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetContactByPhone(ctx context.Context, phone string) (Contact, error) {
	const q = contactSelect + ` WHERE phone = $1`
	return s.scanContact(s.db.QueryRowContext(ctx, q, phone))
}

const contactSelect = `
SELECT id, phone, name, email, whatsapp_number, interest, created_at, updated_at
FROM contacts`

func (s *PostgresStore) scanContact(row *sql.Row) (Contact, error) {
	var c Contact
	if err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.Name,
		&c.Email,
		&c.WhatsAppNumber,
		&c.Interest,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, c Contact) (Contact, error) {
	if c.Phone == "" {
		return Contact{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	// Phone is the natural key: a concurrent create for the same phone must
	// converge on one row, merging additively like UpdateContact.
	const q = `
INSERT INTO contacts (id, phone, name, email, whatsapp_number, interest, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (phone)
DO UPDATE SET
  name            = CASE WHEN EXCLUDED.name            <> '' THEN EXCLUDED.name            ELSE contacts.name            END,
  email           = CASE WHEN EXCLUDED.email           <> '' THEN EXCLUDED.email           ELSE contacts.email           END,
  whatsapp_number = CASE WHEN EXCLUDED.whatsapp_number <> '' THEN EXCLUDED.whatsapp_number ELSE contacts.whatsapp_number END,
  interest        = CASE WHEN EXCLUDED.interest        <> '' THEN EXCLUDED.interest        ELSE contacts.interest        END,
  updated_at      = EXCLUDED.updated_at
RETURNING id, phone, name, email, whatsapp_number, interest, created_at, updated_at
`
	return s.scanContact(s.db.QueryRowContext(ctx, q,
		c.ID, c.Phone, c.Name, c.Email, c.WhatsAppNumber, c.Interest, c.CreatedAt, c.UpdatedAt,
	))
}

func (s *PostgresStore) UpdateContact(ctx context.Context, id string, patch ContactPatch) (Contact, error) {
	if id == "" {
		return Contact{}, ErrInvalidArgument
	}
	if patch.Empty() {
		return s.GetContact(ctx, id)
	}
	// COALESCE keeps the stored value wherever the patch field is nil, so a
	// partial extraction can never blank a previously captured field.
	const q = `
UPDATE contacts SET
  name            = COALESCE($2, name),
  email           = COALESCE($3, email),
  whatsapp_number = COALESCE($4, whatsapp_number),
  interest        = COALESCE($5, interest),
  updated_at      = $6
WHERE id = $1
RETURNING id, phone, name, email, whatsapp_number, interest, created_at, updated_at
`
	return s.scanContact(s.db.QueryRowContext(ctx, q,
		id, patch.Name, patch.Email, patch.WhatsAppNumber, patch.Interest, s.clock().UTC(),
	))
}

const callSelect = `
SELECT call_id, campaign_id, contact_id, carrier_call_id, from_number, to_number,
       status, duration, conversation_summary, success_score, whatsapp_sent,
       collected_data, created_at, updated_at
FROM calls`

func scanCall(scan func(dest ...any) error) (Call, error) {
	var c Call
	if err := scan(
		&c.CallID,
		&c.CampaignID,
		&c.ContactID,
		&c.CarrierCallID,
		&c.From,
		&c.To,
		&c.Status,
		&c.DurationSeconds,
		&c.ConversationSummary,
		&c.SuccessScore,
		&c.WhatsAppSent,
		&c.CollectedData,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func (s *PostgresStore) CreateCall(ctx context.Context, c Call) (Call, error) {
	if c.CampaignID == "" || c.CarrierCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if c.CallID == "" {
		c.CallID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CallStatusInitiated
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
INSERT INTO calls (
  call_id, campaign_id, contact_id, carrier_call_id, from_number, to_number,
  status, duration, conversation_summary, success_score, whatsapp_sent,
  collected_data, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`
	if _, err := s.db.ExecContext(ctx, q,
		c.CallID, c.CampaignID, c.ContactID, c.CarrierCallID, c.From, c.To,
		c.Status, c.DurationSeconds, c.ConversationSummary, c.SuccessScore, c.WhatsAppSent,
		c.CollectedData, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (Call, error) {
	row := s.db.QueryRowContext(ctx, callSelect+` WHERE call_id = $1`, id)
	return scanCall(row.Scan)
}

func (s *PostgresStore) GetCallByCarrierID(ctx context.Context, carrierCallID string) (Call, error) {
	row := s.db.QueryRowContext(ctx, callSelect+` WHERE carrier_call_id = $1`, carrierCallID)
	return scanCall(row.Scan)
}

func (s *PostgresStore) UpdateCall(ctx context.Context, id string, patch CallPatch) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}

	var out Call
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize concurrent lifecycle writes per call.
		row := tx.QueryRowContext(ctx, callSelect+` WHERE call_id = $1 FOR UPDATE`, id)
		cur, err := scanCall(row.Scan)
		if err != nil {
			return err
		}

		if patch.Status != nil && *patch.Status != cur.Status {
			if !cur.Status.CanTransition(*patch.Status) {
				return ErrStatusRegression
			}
		}

		const q = `
UPDATE calls SET
  status               = COALESCE($2, status),
  duration             = COALESCE($3, duration),
  conversation_summary = COALESCE($4, conversation_summary),
  success_score        = COALESCE($5, success_score),
  whatsapp_sent        = COALESCE($6, whatsapp_sent),
  collected_data       = COALESCE($7, collected_data),
  contact_id           = COALESCE($8, contact_id),
  updated_at           = $9
WHERE call_id = $1
RETURNING call_id, campaign_id, contact_id, carrier_call_id, from_number, to_number,
          status, duration, conversation_summary, success_score, whatsapp_sent,
          collected_data, created_at, updated_at
`
		row = tx.QueryRowContext(ctx, q,
			id, patch.Status, patch.DurationSeconds, patch.ConversationSummary,
			patch.SuccessScore, patch.WhatsAppSent, patch.CollectedData, patch.ContactID,
			s.clock().UTC(),
		)
		out, err = scanCall(row.Scan)
		return err
	})
	if err != nil {
		return Call{}, err
	}
	return out, nil
}

func (s *PostgresStore) CreateCallMessage(ctx context.Context, callID string, role Role, content string) (CallMessage, error) {
	if callID == "" || (role != RoleUser && role != RoleAssistant) {
		return CallMessage{}, ErrInvalidArgument
	}
	m := CallMessage{
		ID:        uuid.NewString(),
		CallID:    callID,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock().UTC(),
	}
	const q = `
INSERT INTO call_messages (id, call_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	if _, err := s.db.ExecContext(ctx, q, m.ID, m.CallID, m.Role, m.Content, m.CreatedAt); err != nil {
		return CallMessage{}, err
	}
	return m, nil
}

func (s *PostgresStore) ListCallMessages(ctx context.Context, callID string) ([]CallMessage, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, call_id, role, content, created_at
FROM call_messages
WHERE call_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := s.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallMessage, 0)
	for rows.Next() {
		var m CallMessage
		if err := rows.Scan(&m.ID, &m.CallID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
