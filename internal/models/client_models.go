package models

import (
	"slices"
	"time"
)

// HistoryKind identifies the event an entry in a client's history describes.
type HistoryKind string

// Wire values are the ones the frontend renders.
const (
	KindCreated  HistoryKind = "creado"
	KindPurchase HistoryKind = "compra"
	KindMessage  HistoryKind = "mensaje"
	KindEdited   HistoryKind = "editado"
	KindDeleted  HistoryKind = "eliminado"
)

// Client is a customer record. Sales and History are owned by the client and are never
// stored on their own.
type Client struct {
	ID                string         `json:"_id" bson:"_id"`
	Name              string         `json:"nombre" bson:"nombre"`
	Phone             string         `json:"telefono" bson:"telefono"`
	Email             string         `json:"email" bson:"email"`
	Company           string         `json:"empresa" bson:"empresa"`
	Date              Date           `json:"fecha" bson:"fecha"`
	Purchased         bool           `json:"compro" bson:"compro"`
	Notes             string         `json:"observaciones" bson:"observaciones"`
	NonPurchaseReason string         `json:"razonNoCompra" bson:"razonNoCompra"`
	Contacts          []Contact      `json:"contactosAdicionales" bson:"contactosAdicionales"`
	Salesperson       Salesperson    `json:"vendedor" bson:"vendedor"`
	Sales             []Sale         `json:"ventas" bson:"ventas"`
	History           []HistoryEntry `json:"historial" bson:"historial"`
	CreatedAt         time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Contact is an additional person that can be reached for a client.
type Contact struct {
	Name  string `json:"nombre" bson:"nombre"`
	Phone string `json:"telefono" bson:"telefono"`
}

// Salesperson is a snapshot of the user that created the client, taken at creation time.
type Salesperson struct {
	ID       string `json:"id" bson:"id"`
	Name     string `json:"nombre" bson:"nombre"`
	Username string `json:"username" bson:"username"`
}

// Sale is one purchase recorded against a client.
type Sale struct {
	Product string    `json:"producto" bson:"producto"`
	Amount  float64   `json:"monto" bson:"monto"`
	Date    time.Time `json:"fecha" bson:"fecha"`
}

// HistoryEntry is one immutable line of a client's activity log.
type HistoryEntry struct {
	Kind    HistoryKind `json:"tipo" bson:"tipo"`
	Message string      `json:"mensaje,omitempty" bson:"mensaje,omitempty"`
	Amount  *float64    `json:"monto,omitempty" bson:"monto,omitempty"`
	Product string      `json:"producto,omitempty" bson:"producto,omitempty"`
	Date    time.Time   `json:"fecha" bson:"fecha"`
	Image   string      `json:"imagen,omitempty" bson:"imagen,omitempty"`
	Actor   *ActorRef   `json:"usuario,omitempty" bson:"usuario,omitempty"`
}

// ActorRef is the user attributed to a history entry.
type ActorRef struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"nombre" bson:"nombre"`
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID       string
	Name     string
	Username string
}

// DisplayName returns Name, then Username, then fallback.
func (a Actor) DisplayName(fallback string) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Username != "" {
		return a.Username
	}
	return fallback
}

// Ref returns the reference stored on history entries.
func (a Actor) Ref() *ActorRef {
	return &ActorRef{ID: a.ID, Name: a.DisplayName("")}
}

// ClientUpdate carries a partial update. Nil fields are absent and leave the stored value as is.
type ClientUpdate struct {
	Name              *string   `json:"nombre"`
	Phone             *string   `json:"telefono"`
	Email             *string   `json:"email"`
	Company           *string   `json:"empresa"`
	Date              *Date     `json:"fecha"`
	Purchased         *bool     `json:"compro"`
	Notes             *string   `json:"observaciones"`
	NonPurchaseReason *string   `json:"razonNoCompra"`
	Contacts          []Contact `json:"contactosAdicionales"`
	Sales             []Sale    `json:"ventas"`
}

// ApplyUpdate overwrites the fields present in u. History, salesperson and id are never touched.
func (c *Client) ApplyUpdate(u *ClientUpdate) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Company != nil {
		c.Company = *u.Company
	}
	if u.Date != nil && !u.Date.IsZero() {
		c.Date = *u.Date
	}
	if u.Purchased != nil {
		c.Purchased = *u.Purchased
	}
	if u.Notes != nil {
		c.Notes = *u.Notes
	}
	if u.NonPurchaseReason != nil {
		c.NonPurchaseReason = *u.NonPurchaseReason
	}
	if u.Contacts != nil {
		c.Contacts = append([]Contact{}, u.Contacts...)
	}
	if u.Sales != nil {
		c.Sales = append([]Sale{}, u.Sales...)
	}
}

// AddSale appends a sale. A client with a sale has purchased, permanently.
func (c *Client) AddSale(s Sale) {
	c.Sales = append(c.Sales, s)
	c.Purchased = true
}

// AppendHistory appends entries to the end of the log.
func (c *Client) AppendHistory(entries ...HistoryEntry) {
	c.History = append(c.History, entries...)
}

// EnsureCollections replaces nil slices with empty ones so they encode as [] instead of null.
func (c *Client) EnsureCollections() {
	if c.Contacts == nil {
		c.Contacts = []Contact{}
	}
	if c.Sales == nil {
		c.Sales = []Sale{}
	}
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
}

// Clone returns a deep copy of the client.
func (c *Client) Clone() *Client {
	out := *c
	out.Contacts = slices.Clone(c.Contacts)
	out.Sales = slices.Clone(c.Sales)
	out.History = make([]HistoryEntry, len(c.History))
	for i, e := range c.History {
		if e.Amount != nil {
			amount := *e.Amount
			e.Amount = &amount
		}
		if e.Actor != nil {
			actor := *e.Actor
			e.Actor = &actor
		}
		out.History[i] = e
	}
	if c.History == nil {
		out.History = nil
	}
	return &out
}
