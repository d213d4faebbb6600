// Package history derives the entries appended to a client's activity log.
//
// Every mutation of a client goes through an Engine method that inspects the client before
// the change, mutates it, and appends the resulting entries. Entries already in the log are
// never modified or removed.
package history

import (
	"slices"
	"strconv"
	"time"

	"crm_backend/internal/models"

	"github.com/dustin/go-humanize"
)

const (
	// SystemActorName is shown when a change cannot be attributed to a named user.
	SystemActorName = "sistema"

	DefaultInitialProduct = "Compra inicial"
	DefaultSaleProduct    = "Venta"
	DefaultUpdateProduct  = "Producto"

	contactsUpdatedMessage = "Contactos adicionales actualizados"
)

// Clock returns the current instant.
type Clock func() time.Time

// Engine builds history entries. It holds no per-client state and is safe for concurrent use.
type Engine struct {
	now Clock
}

// NewEngine returns an Engine using now for timestamps; nil means time.Now.
func NewEngine(now Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// stamper hands out non-decreasing timestamps within one evaluation.
type stamper struct {
	now  Clock
	last time.Time
}

func (s *stamper) next() time.Time {
	t := s.now()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (e *Engine) stamper() *stamper { return &stamper{now: e.now} }

// Creation appends the "created" entry and, when initial is not nil, the initial purchase.
func (e *Engine) Creation(c *models.Client, actor models.Actor, initial *models.Sale) []models.HistoryEntry {
	st := e.stamper()
	entries := []models.HistoryEntry{{
		Kind:    models.KindCreated,
		Message: "Cliente creado por " + actor.DisplayName(SystemActorName),
		Date:    st.next(),
		Actor:   actor.Ref(),
	}}
	if initial != nil {
		amount := initial.Amount
		entries = append(entries, models.HistoryEntry{
			Kind:    models.KindPurchase,
			Message: "Compra inicial: " + initial.Product,
			Amount:  &amount,
			Product: initial.Product,
			Date:    st.next(),
			Actor:   actor.Ref(),
		})
	}
	c.AppendHistory(entries...)
	return entries
}

// Diff returns the entries describing u relative to current, without changing current.
// All rules look at the same snapshot.
func (e *Engine) Diff(current *models.Client, u *models.ClientUpdate, actor models.Actor) []models.HistoryEntry {
	return e.diff(e.stamper(), current, u, actor)
}

func (e *Engine) diff(st *stamper, current *models.Client, u *models.ClientUpdate, actor models.Actor) []models.HistoryEntry {
	var entries []models.HistoryEntry

	for _, f := range watchedFields {
		in, ok := f.incoming(u)
		if !ok || in == f.stored(current) {
			continue
		}
		entries = append(entries, models.HistoryEntry{
			Kind:    models.KindEdited,
			Message: f.label + " modificado",
			Date:    st.next(),
			Actor:   actor.Ref(),
		})
	}

	if u.Notes != nil && *u.Notes != current.Notes {
		entries = append(entries, models.HistoryEntry{
			Kind:    models.KindMessage,
			Message: *u.Notes,
			Date:    st.next(),
			Actor:   actor.Ref(),
		})
	}

	// Sales are assumed to be append-only: anything past the stored length is new.
	if len(u.Sales) > len(current.Sales) {
		for _, s := range u.Sales[len(current.Sales):] {
			product := s.Product
			if product == "" {
				product = DefaultUpdateProduct
			}
			amount := s.Amount
			entries = append(entries, models.HistoryEntry{
				Kind:    models.KindPurchase,
				Message: "Venta registrada: " + product,
				Amount:  &amount,
				Product: product,
				Date:    st.next(),
				Actor:   actor.Ref(),
			})
		}
	}

	if u.Contacts != nil && !slices.Equal(u.Contacts, current.Contacts) {
		entries = append(entries, models.HistoryEntry{
			Kind:    models.KindEdited,
			Message: contactsUpdatedMessage,
			Date:    st.next(),
			Actor:   actor.Ref(),
		})
	}

	return entries
}

// Update diffs u against c, applies u to c and appends the resulting entries.
// Sales added past the stored length get default product and date and mark the client as a buyer.
func (e *Engine) Update(c *models.Client, u *models.ClientUpdate, actor models.Actor) []models.HistoryEntry {
	st := e.stamper()
	entries := e.diff(st, c, u, actor)

	stored := len(c.Sales)
	c.ApplyUpdate(u)
	if u.Sales != nil && len(c.Sales) > stored {
		for i := stored; i < len(c.Sales); i++ {
			if c.Sales[i].Product == "" {
				c.Sales[i].Product = DefaultUpdateProduct
			}
			if c.Sales[i].Date.IsZero() {
				c.Sales[i].Date = st.next()
			}
		}
		c.Purchased = true
	}

	c.AppendHistory(entries...)
	return entries
}

// RecordSale adds s to c and appends the matching purchase entry.
func (e *Engine) RecordSale(c *models.Client, s models.Sale, actor models.Actor) models.HistoryEntry {
	st := e.stamper()
	if s.Product == "" {
		s.Product = DefaultSaleProduct
	}
	now := st.next()
	if s.Date.IsZero() {
		s.Date = now
	}
	c.AddSale(s)

	amount := s.Amount
	entry := models.HistoryEntry{
		Kind:    models.KindPurchase,
		Message: FormatSaleMessage(s.Amount, s.Product),
		Amount:  &amount,
		Product: s.Product,
		Date:    now,
		Actor:   actor.Ref(),
	}
	c.AppendHistory(entry)
	return entry
}

// RecordMessage replaces the client's notes with message and appends it to the log.
func (e *Engine) RecordMessage(c *models.Client, message, image string, actor models.Actor) models.HistoryEntry {
	c.Notes = message
	entry := models.HistoryEntry{
		Kind:    models.KindMessage,
		Message: message,
		Image:   image,
		Date:    e.now(),
		Actor:   actor.Ref(),
	}
	c.AppendHistory(entry)
	return entry
}

// Deletion appends the final entry written before a client is removed.
func (e *Engine) Deletion(c *models.Client, actor models.Actor) models.HistoryEntry {
	entry := models.HistoryEntry{
		Kind:    models.KindDeleted,
		Message: "Cliente eliminado por " + actor.DisplayName(SystemActorName),
		Date:    e.now(),
		Actor:   actor.Ref(),
	}
	c.AppendHistory(entry)
	return entry
}

// FormatSaleMessage renders e.g. "💰 $1,250.5 - Kit".
func FormatSaleMessage(amount float64, product string) string {
	return "💰 $" + humanize.Commaf(amount) + " - " + product
}

// watchedField is a scalar client field whose change is logged as an "editado" entry.
type watchedField struct {
	label    string
	incoming func(u *models.ClientUpdate) (string, bool)
	stored   func(c *models.Client) string
}

func textField(label string, in func(*models.ClientUpdate) *string, stored func(*models.Client) string) watchedField {
	return watchedField{
		label: label,
		incoming: func(u *models.ClientUpdate) (string, bool) {
			v := in(u)
			if v == nil {
				return "", false
			}
			return *v, true
		},
		stored: stored,
	}
}

// watchedFields is evaluated in order, so entries come out in this order too.
var watchedFields = []watchedField{
	textField("Nombre",
		func(u *models.ClientUpdate) *string { return u.Name },
		func(c *models.Client) string { return c.Name }),
	textField("Teléfono",
		func(u *models.ClientUpdate) *string { return u.Phone },
		func(c *models.Client) string { return c.Phone }),
	textField("Email",
		func(u *models.ClientUpdate) *string { return u.Email },
		func(c *models.Client) string { return c.Email }),
	textField("Empresa",
		func(u *models.ClientUpdate) *string { return u.Company },
		func(c *models.Client) string { return c.Company }),
	{
		label: "Estado de compra",
		incoming: func(u *models.ClientUpdate) (string, bool) {
			if u.Purchased == nil {
				return "", false
			}
			return strconv.FormatBool(*u.Purchased), true
		},
		stored: func(c *models.Client) string { return strconv.FormatBool(c.Purchased) },
	},
	textField("Razón de no compra",
		func(u *models.ClientUpdate) *string { return u.NonPurchaseReason },
		func(c *models.Client) string { return c.NonPurchaseReason }),
}
