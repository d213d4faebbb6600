package history

import (
	"testing"
	"time"

	"crm_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.May, 10, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// steppingClock returns t0, t0+1s, t0+2s, ...
func steppingClock(t0 time.Time) Clock {
	n := 0
	return func() time.Time {
		t := t0.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

var ana = models.Actor{ID: "u1", Name: "Ana", Username: "ana"}

func messages(entries []models.HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestEngine_Creation(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{}

	entries := e.Creation(c, ana, nil)

	require.Len(t, entries, 1)
	assert.Equal(t, models.KindCreated, entries[0].Kind)
	assert.Equal(t, "Cliente creado por Ana", entries[0].Message)
	assert.Equal(t, fixedNow, entries[0].Date)
	assert.Equal(t, &models.ActorRef{ID: "u1", Name: "Ana"}, entries[0].Actor)
	assert.Equal(t, entries, c.History)
}

func TestEngine_CreationWithInitialSale(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{}

	entries := e.Creation(c, models.Actor{ID: "u2"}, &models.Sale{Product: "Kit", Amount: 150})

	require.Len(t, entries, 2)
	assert.Equal(t, "Cliente creado por sistema", entries[0].Message)
	assert.Equal(t, models.KindPurchase, entries[1].Kind)
	assert.Equal(t, "Compra inicial: Kit", entries[1].Message)
	require.NotNil(t, entries[1].Amount)
	assert.Equal(t, 150.0, *entries[1].Amount)
	assert.Equal(t, "Kit", entries[1].Product)
}

func TestEngine_DiffReportsEachChangedField(t *testing.T) {
	e := NewEngine(fixedClock)
	current := &models.Client{
		Name:     "Ana",
		Phone:    "555",
		Email:    "ana@example.com",
		Company:  "ACME",
		Notes:    "old",
		Contacts: []models.Contact{{Name: "Luis", Phone: "1"}},
		Sales:    []models.Sale{{Product: "A", Amount: 1}},
	}
	u := &models.ClientUpdate{
		Name:              strPtr("Ana María"),
		Phone:             strPtr("555"),
		Email:             strPtr("ana@new.com"),
		Company:           strPtr("ACME"),
		Purchased:         boolPtr(true),
		NonPurchaseReason: strPtr("precio"),
		Notes:             strPtr("nueva nota"),
		Sales:             []models.Sale{{Product: "A", Amount: 1}, {Product: "B", Amount: 20}, {Amount: 5}},
		Contacts:          []models.Contact{{Name: "Luis", Phone: "2"}},
	}

	entries := e.Diff(current, u, ana)

	assert.Equal(t, []string{
		"Nombre modificado",
		"Email modificado",
		"Estado de compra modificado",
		"Razón de no compra modificado",
		"nueva nota",
		"Venta registrada: B",
		"Venta registrada: Producto",
		"Contactos adicionales actualizados",
	}, messages(entries))
	assert.Equal(t, models.KindMessage, entries[4].Kind)
	assert.Equal(t, models.KindPurchase, entries[5].Kind)
	assert.Equal(t, 20.0, *entries[5].Amount)
	assert.Equal(t, "Producto", entries[6].Product)
	for _, entry := range entries {
		assert.Equal(t, "u1", entry.Actor.ID)
	}
	assert.Equal(t, "Ana", current.Name, "Diff must not mutate the client")
}

func TestEngine_DiffIgnoresAbsentAndUnchanged(t *testing.T) {
	e := NewEngine(fixedClock)
	current := &models.Client{Name: "Ana", Purchased: true}

	entries := e.Diff(current, &models.ClientUpdate{
		Name:      strPtr("Ana"),
		Purchased: boolPtr(true),
		Contacts:  []models.Contact{},
		Sales:     []models.Sale{},
	}, ana)

	assert.Empty(t, entries)
}

func TestEngine_DiffShorterSalesListLogsNothing(t *testing.T) {
	e := NewEngine(fixedClock)
	current := &models.Client{Sales: []models.Sale{{Product: "A"}, {Product: "B"}}}

	entries := e.Diff(current, &models.ClientUpdate{Sales: []models.Sale{{Product: "Z"}}}, ana)

	assert.Empty(t, entries)
}

func TestEngine_UpdateAppliesAndAppends(t *testing.T) {
	e := NewEngine(steppingClock(fixedNow))
	c := &models.Client{
		Name:    "Ana",
		History: []models.HistoryEntry{{Kind: models.KindCreated, Message: "Cliente creado por Ana"}},
	}

	entries := e.Update(c, &models.ClientUpdate{
		Name:  strPtr("Ana María"),
		Sales: []models.Sale{{Amount: 30}},
	}, ana)

	require.Len(t, entries, 2)
	assert.Equal(t, "Ana María", c.Name)
	assert.True(t, c.Purchased)
	require.Len(t, c.Sales, 1)
	assert.Equal(t, DefaultUpdateProduct, c.Sales[0].Product)
	assert.False(t, c.Sales[0].Date.IsZero())
	require.Len(t, c.History, 3)
	assert.Equal(t, "Cliente creado por Ana", c.History[0].Message)
	assert.False(t, c.History[2].Date.Before(c.History[1].Date))
}

func TestEngine_UpdateWithoutChangesKeepsHistory(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{Name: "Ana", History: []models.HistoryEntry{{Kind: models.KindCreated}}}

	entries := e.Update(c, &models.ClientUpdate{Name: strPtr("Ana")}, ana)

	assert.Empty(t, entries)
	assert.Len(t, c.History, 1)
}

func TestEngine_RecordSale(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{}

	entry := e.RecordSale(c, models.Sale{Amount: 1250.5}, ana)

	assert.Equal(t, models.KindPurchase, entry.Kind)
	assert.Equal(t, "💰 $1,250.5 - Venta", entry.Message)
	assert.Equal(t, DefaultSaleProduct, entry.Product)
	assert.True(t, c.Purchased)
	require.Len(t, c.Sales, 1)
	assert.Equal(t, fixedNow, c.Sales[0].Date)
	assert.Equal(t, []models.HistoryEntry{entry}, c.History)
}

func TestEngine_RecordSaleKeepsGivenDate(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{}
	when := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	entry := e.RecordSale(c, models.Sale{Product: "Kit", Amount: 10, Date: when}, ana)

	assert.Equal(t, when, c.Sales[0].Date)
	assert.Equal(t, fixedNow, entry.Date)
}

func TestEngine_RecordMessage(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{Notes: "old"}

	entry := e.RecordMessage(c, "Llamar mañana", "data:image/png;base64,AAAA", ana)

	assert.Equal(t, "Llamar mañana", c.Notes)
	assert.Equal(t, models.KindMessage, entry.Kind)
	assert.Equal(t, "data:image/png;base64,AAAA", entry.Image)
	assert.Len(t, c.History, 1)
}

func TestEngine_Deletion(t *testing.T) {
	e := NewEngine(fixedClock)
	c := &models.Client{History: []models.HistoryEntry{{Kind: models.KindCreated}}}

	entry := e.Deletion(c, models.Actor{ID: "u3", Username: "pepe"})

	assert.Equal(t, models.KindDeleted, entry.Kind)
	assert.Equal(t, "Cliente eliminado por pepe", entry.Message)
	assert.Len(t, c.History, 2)
}

func TestStamperIsNonDecreasing(t *testing.T) {
	calls := []time.Time{fixedNow, fixedNow.Add(-time.Minute), fixedNow.Add(time.Second)}
	i := 0
	st := &stamper{now: func() time.Time {
		t := calls[i]
		i++
		return t
	}}

	assert.Equal(t, fixedNow, st.next())
	assert.Equal(t, fixedNow, st.next())
	assert.Equal(t, fixedNow.Add(time.Second), st.next())
}

func TestFormatSaleMessage(t *testing.T) {
	assert.Equal(t, "💰 $100 - Kit", FormatSaleMessage(100, "Kit"))
	assert.Equal(t, "💰 $1,000,000 - Plan anual", FormatSaleMessage(1_000_000, "Plan anual"))
}
