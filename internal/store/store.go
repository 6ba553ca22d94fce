package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"festival-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// GetTicket retrieves a ticket by ID
func (s *Store) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.GetContext(ctx, &ticket, "SELECT * FROM tickets WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CreateTicket inserts a ticket and its stock units in one transaction.
// Publishing quantity N creates N free units.
func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tickets (festival_id, name, detail, price, quantity, start_sale_time, end_sale_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	if err := tx.GetContext(ctx, ticket, query,
		ticket.FestivalID, ticket.Name, ticket.Detail, ticket.Price,
		ticket.Quantity, ticket.StartSaleTime, ticket.EndSaleTime); err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	for i := 0; i < ticket.Quantity; i++ {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO ticket_stock (ticket_id) VALUES ($1)", ticket.ID); err != nil {
			return fmt.Errorf("failed to create stock unit: %w", err)
		}
	}

	return tx.Commit()
}
