package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Error
)

// ClientRepository loads, saves and removes whole client documents.
// Each call reads or writes one client atomically; there is no locking across calls.
type ClientRepository interface {
	CreateClient(ctx context.Context, client *models.Client) error
	GetClientByID(ctx context.Context, id string) (*models.Client, error)
	GetClients(ctx context.Context) ([]models.Client, error) // newest fecha first
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, id string) error
}

// clientRepository stores each client as a single row; sales, history, contacts and the
// salesperson snapshot live in JSONB columns so a save is one row write.
type clientRepository struct {
	db SQLExecutor
}

// NewClientRepository creates a new Postgres-backed ClientRepository.
func NewClientRepository(db SQLExecutor) ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `id, nombre, telefono, email, empresa, fecha, compro, observaciones, razon_no_compra,
	contactos_adicionales, vendedor, ventas, historial, created_at, updated_at`

// clientDocuments holds the JSON-encoded columns of a client row.
type clientDocuments struct {
	contacts    string
	salesperson string
	sales       string
	history     string
}

func encodeClientDocuments(client *models.Client) (*clientDocuments, error) {
	client.EnsureCollections()
	contacts, err := json.Marshal(client.Contacts)
	if err != nil {
		return nil, fmt.Errorf("encoding contacts: %w", err)
	}
	salesperson, err := json.Marshal(client.Salesperson)
	if err != nil {
		return nil, fmt.Errorf("encoding salesperson: %w", err)
	}
	sales, err := json.Marshal(client.Sales)
	if err != nil {
		return nil, fmt.Errorf("encoding sales: %w", err)
	}
	history, err := json.Marshal(client.History)
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}
	// lib/pq sends []byte as bytea, so JSONB parameters go over as text
	return &clientDocuments{
		contacts:    string(contacts),
		salesperson: string(salesperson),
		sales:       string(sales),
		history:     string(history),
	}, nil
}

func scanClient(s scanner) (*models.Client, error) {
	client := &models.Client{}
	var contacts, salesperson, sales, history []byte
	if err := s.Scan(
		&client.ID, &client.Name, &client.Phone, &client.Email, &client.Company, &client.Date,
		&client.Purchased, &client.Notes, &client.NonPurchaseReason,
		&contacts, &salesperson, &sales, &history, &client.CreatedAt, &client.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(contacts, &client.Contacts); err != nil {
		return nil, fmt.Errorf("decoding contacts of client %s: %w", client.ID, err)
	}
	if err := decodeJSONColumn(salesperson, &client.Salesperson); err != nil {
		return nil, fmt.Errorf("decoding salesperson of client %s: %w", client.ID, err)
	}
	if err := decodeJSONColumn(sales, &client.Sales); err != nil {
		return nil, fmt.Errorf("decoding sales of client %s: %w", client.ID, err)
	}
	if err := decodeJSONColumn(history, &client.History); err != nil {
		return nil, fmt.Errorf("decoding history of client %s: %w", client.ID, err)
	}
	client.EnsureCollections()
	return client, nil
}

func decodeJSONColumn(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// CreateClient inserts a new client, assigning an id when it has none.
func (r *clientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	currentTime := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = currentTime
	}
	client.UpdatedAt = currentTime

	docs, err := encodeClientDocuments(client)
	if err != nil {
		return fmt.Errorf("%w: creating client: %v", ErrDatabaseError, err)
	}

	query := `INSERT INTO clients (` + clientColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.db.ExecContext(ctx, query,
		client.ID, client.Name, client.Phone, client.Email, client.Company, client.Date,
		client.Purchased, client.Notes, client.NonPurchaseReason,
		docs.contacts, docs.salesperson, docs.sales, docs.history, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: %s (constraint: %s)", ErrDuplicateKey, pqErr.Message, pqErr.Constraint)
		}
		return fmt.Errorf("%w: creating client: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetClientByID retrieves a client by its id.
func (r *clientRepository) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	client, err := scanClient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting client by ID %s: %v", ErrDatabaseError, id, err)
	}
	return client, nil
}

// GetClients retrieves every client, most recent fecha first.
func (r *clientRepository) GetClients(ctx context.Context) ([]models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY fecha DESC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying clients: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning client: %v", ErrDatabaseError, err)
		}
		clients = append(clients, *client)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating client rows: %v", ErrDatabaseError, err)
	}
	return clients, nil
}

// UpdateClient overwrites the stored client with the given one.
func (r *clientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	if _, err := uuid.Parse(client.ID); err != nil {
		return ErrNotFound
	}
	client.UpdatedAt = time.Now()
	docs, err := encodeClientDocuments(client)
	if err != nil {
		return fmt.Errorf("%w: updating client ID %s: %v", ErrDatabaseError, client.ID, err)
	}

	query := `UPDATE clients SET
	            nombre = $1, telefono = $2, email = $3, empresa = $4, fecha = $5, compro = $6,
	            observaciones = $7, razon_no_compra = $8, contactos_adicionales = $9, vendedor = $10,
	            ventas = $11, historial = $12, updated_at = $13
	          WHERE id = $14`
	result, err := r.db.ExecContext(ctx, query,
		client.Name, client.Phone, client.Email, client.Company, client.Date, client.Purchased,
		client.Notes, client.NonPurchaseReason, docs.contacts, docs.salesperson,
		docs.sales, docs.history, client.UpdatedAt, client.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating client ID %s: %v", ErrDatabaseError, client.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for updating client ID %s: %v", ErrDatabaseError, client.ID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClient removes a client from the database.
func (r *clientRepository) DeleteClient(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting client ID %s: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for deleting client ID %s: %v", ErrDatabaseError, id, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
