// Package audit ships client history to an external trail, so entries written just before a
// client is deleted remain available after the record is gone.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crm_backend/internal/models"

	"github.com/nats-io/nats.go"
)

// Publisher receives history as it is persisted. Implementations are best-effort: callers log
// errors and carry on, and nothing is retried.
type Publisher interface {
	PublishEntries(ctx context.Context, clientID string, entries []models.HistoryEntry) error
	PublishDeletion(ctx context.Context, client *models.Client) error
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) PublishEntries(context.Context, string, []models.HistoryEntry) error { return nil }
func (NopPublisher) PublishDeletion(context.Context, *models.Client) error               { return nil }

// EntriesEvent is the payload published for newly appended history entries.
type EntriesEvent struct {
	ClientID    string                `json:"clientId"`
	Entries     []models.HistoryEntry `json:"entries"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// DeletionEvent carries the final state of a deleted client, full history included.
type DeletionEvent struct {
	Client      *models.Client `json:"client"`
	PublishedAt time.Time      `json:"publishedAt"`
}

// NATSPublisher publishes JSON events on core NATS subjects
// "<prefix>.<clientID>.history" and "<prefix>.<clientID>.deleted".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials url and returns a publisher using subject prefix.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("crm-backend"))
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS at %s: %w", url, err)
	}
	return NewNATSPublisher(conn, prefix), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// HistorySubject returns the subject new entries of clientID are published on.
func HistorySubject(prefix, clientID string) string {
	return prefix + "." + clientID + ".history"
}

// DeletionSubject returns the subject the final snapshot of clientID is published on.
func DeletionSubject(prefix, clientID string) string {
	return prefix + "." + clientID + ".deleted"
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing audit event to %s: %w", subject, err)
	}
	return nil
}

// withoutImages drops attached images; they can exceed the NATS max payload.
func withoutImages(entries []models.HistoryEntry) []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(entries))
	for i, e := range entries {
		e.Image = ""
		out[i] = e
	}
	return out
}

func (p *NATSPublisher) PublishEntries(ctx context.Context, clientID string, entries []models.HistoryEntry) error {
	return p.publish(ctx, HistorySubject(p.prefix, clientID), EntriesEvent{
		ClientID:    clientID,
		Entries:     withoutImages(entries),
		PublishedAt: time.Now(),
	})
}

func (p *NATSPublisher) PublishDeletion(ctx context.Context, client *models.Client) error {
	snapshot := client.Clone()
	snapshot.History = withoutImages(snapshot.History)
	return p.publish(ctx, DeletionSubject(p.prefix, client.ID), DeletionEvent{
		Client:      snapshot,
		PublishedAt: time.Now(),
	})
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
