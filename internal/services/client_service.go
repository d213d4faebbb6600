package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/audit"
	"crm_backend/internal/history"
	"crm_backend/internal/metrics"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/pkg/utils"
)

// MaxImageLength is the largest attached image accepted, in encoded characters (about 5MB of binary).
const MaxImageLength = 7_000_000

// --- Custom Service Errors for Client ---
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPersistence     = errors.New("persistence failure")

	ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive number", ErrInvalidArgument)
	ErrEmptyMessage  = fmt.Errorf("%w: message cannot be empty", ErrInvalidArgument)
	ErrImageTooLarge = fmt.Errorf("%w: image exceeds %d characters", ErrInvalidArgument, MaxImageLength)
	ErrInvalidDate   = fmt.Errorf("%w: invalid date format, please use YYYY-MM-DD", ErrInvalidArgument)
)

// --- Client DTOs ---

// CreateClientRequest is the payload for a new client. Monto > 0 records an initial sale.
type CreateClientRequest struct {
	Name              string           `json:"nombre"`
	Phone             string           `json:"telefono"`
	Email             string           `json:"email"`
	Company           string           `json:"empresa"`
	Date              string           `json:"fecha"` // YYYY-MM-DD, today when empty
	Notes             string           `json:"observaciones"`
	NonPurchaseReason string           `json:"razonNoCompra"`
	Contacts          []models.Contact `json:"contactosAdicionales"`
	Amount            *float64         `json:"monto"`
	Product           string           `json:"producto"`
}

// RecordSaleRequest is the payload of POST /clients/:id/ventas.
type RecordSaleRequest struct {
	Product string   `json:"producto"`
	Amount  *float64 `json:"monto"`
	Date    string   `json:"fecha"` // RFC3339 or YYYY-MM-DD; now when empty
}

// RecordMessageRequest is the payload of POST /clients/:id/mensaje.
type RecordMessageRequest struct {
	Message string `json:"mensaje"`
	Image   string `json:"imagen"`
}

// --- ClientService Interface ---
type ClientService interface {
	CreateClient(ctx context.Context, req CreateClientRequest, actor models.Actor) (*models.Client, error)
	GetClients(ctx context.Context) ([]models.Client, error)
	GetClientByID(ctx context.Context, clientID string) (*models.Client, error)
	UpdateClient(ctx context.Context, clientID string, update models.ClientUpdate, actor models.Actor) (*models.Client, error)
	DeleteClient(ctx context.Context, clientID string, actor models.Actor) (*models.Client, error)
	RecordSale(ctx context.Context, clientID string, req RecordSaleRequest, actor models.Actor) (*models.Client, error)
	RecordMessage(ctx context.Context, clientID string, req RecordMessageRequest, actor models.Actor) (*models.Client, error)
}

// --- clientService Implementation ---
type clientService struct {
	clientRepo repositories.ClientRepository
	engine     *history.Engine
	publisher  audit.Publisher
	now        history.Clock
}

// NewClientService creates a new instance of ClientService. A nil publisher disables auditing.
func NewClientService(repo repositories.ClientRepository, engine *history.Engine, publisher audit.Publisher, now history.Clock) ClientService {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &clientService{
		clientRepo: repo,
		engine:     engine,
		publisher:  publisher,
		now:        now,
	}
}

// load fetches a client, translating repository errors into service errors.
func (s *clientService) load(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.clientRepo.GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("%w: loading client %s: %w", ErrPersistence, clientID, err)
	}
	return client, nil
}

// save persists the whole client document, then reports the entries it appended.
func (s *clientService) save(ctx context.Context, client *models.Client, appended []models.HistoryEntry) error {
	if err := s.clientRepo.UpdateClient(ctx, client); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("%w: saving client %s: %w", ErrPersistence, client.ID, err)
	}
	s.appended(ctx, client.ID, appended)
	return nil
}

func (s *clientService) appended(ctx context.Context, clientID string, entries []models.HistoryEntry) {
	if len(entries) == 0 {
		return
	}
	metrics.ObserveHistoryEntries(entries)
	utils.LogDebug("History entries appended", map[string]interface{}{"client_id": clientID, "count": len(entries)})
	if err := s.publisher.PublishEntries(ctx, clientID, entries); err != nil {
		utils.LogError(err, "Failed to publish history entries for client "+clientID)
	}
}

func (s *clientService) CreateClient(ctx context.Context, req CreateClientRequest, actor models.Actor) (*models.Client, error) {
	date := models.DateOf(s.now())
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := models.ParseDate(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date)
		}
		date = parsed
	}

	var initial *models.Sale
	if req.Amount != nil && *req.Amount > 0 {
		product := req.Product
		if product == "" {
			product = history.DefaultInitialProduct
		}
		initial = &models.Sale{Product: product, Amount: *req.Amount, Date: s.now()}
	}

	client := &models.Client{
		Name:              req.Name,
		Phone:             req.Phone,
		Email:             req.Email,
		Company:           req.Company,
		Date:              date,
		Purchased:         initial != nil,
		Notes:             req.Notes,
		NonPurchaseReason: req.NonPurchaseReason,
		Contacts:          append([]models.Contact{}, req.Contacts...),
		Salesperson: models.Salesperson{
			ID:       actor.ID,
			Name:     actor.Name,
			Username: actor.Username,
		},
	}
	if initial != nil {
		client.Sales = []models.Sale{*initial}
	}
	entries := s.engine.Creation(client, actor, initial)

	if err := s.clientRepo.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("%w: creating client: %w", ErrPersistence, err)
	}
	s.appended(ctx, client.ID, entries)
	return client, nil
}

func (s *clientService) GetClients(ctx context.Context) ([]models.Client, error) {
	clients, err := s.clientRepo.GetClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing clients: %w", ErrPersistence, err)
	}
	return clients, nil
}

func (s *clientService) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	return s.load(ctx, clientID)
}

func (s *clientService) UpdateClient(ctx context.Context, clientID string, update models.ClientUpdate, actor models.Actor) (*models.Client, error) {
	for _, sale := range update.Sales {
		if sale.Amount < 0 {
			return nil, fmt.Errorf("%w: sale amounts cannot be negative", ErrInvalidArgument)
		}
	}

	client, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entries := s.engine.Update(client, &update, actor)
	if err := s.save(ctx, client, entries); err != nil {
		return nil, err
	}
	return client, nil
}

// DeleteClient records the deletion in the client's history, persists it, publishes the final
// snapshot for auditing and only then removes the client. The returned client is that snapshot.
func (s *clientService) DeleteClient(ctx context.Context, clientID string, actor models.Actor) (*models.Client, error) {
	client, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entry := s.engine.Deletion(client, actor)
	if err := s.save(ctx, client, []models.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	if err := s.publisher.PublishDeletion(ctx, client); err != nil {
		utils.LogError(err, "Failed to publish deletion snapshot for client "+clientID)
	}

	if err := s.clientRepo.DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("%w: deleting client %s: %w", ErrPersistence, clientID, err)
	}
	return client, nil
}

func (s *clientService) RecordSale(ctx context.Context, clientID string, req RecordSaleRequest, actor models.Actor) (*models.Client, error) {
	if req.Amount == nil || *req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var saleDate time.Time
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseSaleDate(req.Date)
		if err != nil {
			return nil, err
		}
		saleDate = parsed
	}

	client, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entry := s.engine.RecordSale(client, models.Sale{Product: req.Product, Amount: *req.Amount, Date: saleDate}, actor)
	if err := s.save(ctx, client, []models.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return client, nil
}

func parseSaleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (s *clientService) RecordMessage(ctx context.Context, clientID string, req RecordMessageRequest, actor models.Actor) (*models.Client, error) {
	if utils.IsEmpty(req.Message) {
		return nil, ErrEmptyMessage
	}

	client, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(req.Image) > MaxImageLength {
		return nil, ErrImageTooLarge
	}

	entry := s.engine.RecordMessage(client, req.Message, req.Image, actor)
	if err := s.save(ctx, client, []models.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return client, nil
}
