package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commenta.app/cloud/models"
	"github.com/google/uuid"
)

const ticketSelect = `
	SELECT t.id, t.user_id, t.subject, t.status, t.created_at, t.updated_at, p.email, p.full_name
	FROM support_tickets t
	LEFT JOIN profiles p ON p.id = t.user_id`

func scanTicket(row rowScanner) (*models.SupportTicket, error) {
	var (
		t           models.SupportTicket
		email, name sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Status, &t.CreatedAt, &t.UpdatedAt, &email, &name); err != nil {
		return nil, err
	}
	t.UserEmail = email.String
	t.UserName = name.String
	return &t, nil
}

// ListTickets lists all tickets, optionally filtered by status, most
// recently updated first.
func (s *SQLStore) ListTickets(ctx context.Context, status string) ([]models.SupportTicket, error) {
	if status == "" {
		return s.listTickets(ctx, ticketSelect+` ORDER BY t.updated_at DESC`)
	}
	return s.listTickets(ctx, ticketSelect+` WHERE t.status = ? ORDER BY t.updated_at DESC`, status)
}

func (s *SQLStore) ListTicketsByUser(ctx context.Context, userID string) ([]models.SupportTicket, error) {
	return s.listTickets(ctx, ticketSelect+` WHERE t.user_id = ? ORDER BY t.updated_at DESC`, userID)
}

func (s *SQLStore) listTickets(ctx context.Context, query string, args ...any) ([]models.SupportTicket, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query support tickets: %w", err)
	}
	defer closeRows(rows)

	tickets := []models.SupportTicket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan support ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating support tickets: %w", err)
	}
	return tickets, nil
}

func (s *SQLStore) GetTicket(ctx context.Context, id string) (*models.SupportTicket, error) {
	t, err := scanTicket(s.queryRow(ctx, s.db, ticketSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get support ticket: %w", err)
	}
	return t, nil
}

// ListTicketMessages returns the conversation of a ticket in chronological order.
func (s *SQLStore) ListTicketMessages(ctx context.Context, ticketID string) ([]models.TicketMessage, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, ticket_id, author_type, author_id, body, created_at
		FROM support_ticket_messages
		WHERE ticket_id = ?
		ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket messages: %w", err)
	}
	defer closeRows(rows)

	messages := []models.TicketMessage{}
	for rows.Next() {
		var (
			m        models.TicketMessage
			authorID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorType, &authorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket message: %w", err)
		}
		m.AuthorID = authorID.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket messages: %w", err)
	}
	return messages, nil
}

// CreateTicket opens a ticket together with its first message.
func (s *SQLStore) CreateTicket(ctx context.Context, ticket *models.SupportTicket, first *models.TicketMessage) error {
	now := s.now().UTC()
	ticket.ID = uuid.NewString()
	ticket.Status = models.TicketStatusOpen
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
			INSERT INTO support_tickets (id, user_id, subject, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ticket.ID, ticket.UserID, ticket.Subject, ticket.Status, ticket.CreatedAt, ticket.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create support ticket: %w", err)
		}

		first.TicketID = ticket.ID
		return s.insertMessage(ctx, tx, first, now)
	})
}

// AddTicketMessage appends a message and bumps the ticket. When setStatus is
// not empty the ticket moves to it, but only from onlyFromStatus if that is
// given.
func (s *SQLStore) AddTicketMessage(ctx context.Context, msg *models.TicketMessage, setStatus, onlyFromStatus string) error {
	now := s.now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertMessage(ctx, tx, msg, now); err != nil {
			return err
		}

		if _, err := s.exec(ctx, tx, `UPDATE support_tickets SET updated_at = ? WHERE id = ?`, now, msg.TicketID); err != nil {
			return fmt.Errorf("failed to touch support ticket: %w", err)
		}

		if setStatus == "" {
			return nil
		}
		query := `UPDATE support_tickets SET status = ? WHERE id = ?`
		args := []any{setStatus, msg.TicketID}
		if onlyFromStatus != "" {
			query += ` AND status = ?`
			args = append(args, onlyFromStatus)
		}
		if _, err := s.exec(ctx, tx, query, args...); err != nil {
			return fmt.Errorf("failed to update support ticket status: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) insertMessage(ctx context.Context, tx *sql.Tx, msg *models.TicketMessage, now time.Time) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	_, err := s.exec(ctx, tx, `
		INSERT INTO support_ticket_messages (id, ticket_id, author_type, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.TicketID, msg.AuthorType, nullString(msg.AuthorID), msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add ticket message: %w", err)
	}
	return nil
}

func (s *SQLStore) SetTicketStatus(ctx context.Context, id, status string) error {
	res, err := s.exec(ctx, s.db, `UPDATE support_tickets SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update support ticket status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
