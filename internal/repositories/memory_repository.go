package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crm_backend/internal/models"

	"github.com/google/uuid"
)

// MemoryClientRepository keeps clients in process memory. Documents are copied on the way in
// and out, so callers never share state with the store. Used for local runs and tests.
type MemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
	order   []string // insertion order, for stable listing
}

// NewMemoryClientRepository creates an empty in-memory client store.
func NewMemoryClientRepository() *MemoryClientRepository {
	return &MemoryClientRepository{clients: make(map[string]*models.Client)}
}

func (r *MemoryClientRepository) CreateClient(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if _, exists := r.clients[client.ID]; exists {
		return fmt.Errorf("%w: client %s", ErrDuplicateKey, client.ID)
	}
	now := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	client.EnsureCollections()

	r.clients[client.ID] = client.Clone()
	r.order = append(r.order, client.ID)
	return nil
}

func (r *MemoryClientRepository) GetClientByID(_ context.Context, id string) (*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return client.Clone(), nil
}

func (r *MemoryClientRepository) GetClients(_ context.Context) ([]models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]models.Client, 0, len(r.order))
	// newest insertion first, so equal fechas keep created-at descending order
	for i := len(r.order) - 1; i >= 0; i-- {
		clients = append(clients, *r.clients[r.order[i]].Clone())
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].Date.Compare(clients[j].Date) > 0
	})
	return clients, nil
}

func (r *MemoryClientRepository) UpdateClient(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; !ok {
		return ErrNotFound
	}
	client.UpdatedAt = time.Now()
	client.EnsureCollections()
	r.clients[client.ID] = client.Clone()
	return nil
}

func (r *MemoryClientRepository) DeleteClient(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return ErrNotFound
	}
	delete(r.clients, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemoryUserRepository creates an empty in-memory user store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (r *MemoryUserRepository) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return fmt.Errorf("%w: username %s", ErrDuplicateKey, user.Username)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) FindUserByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}
