package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/petcare-system/internal/model"
)

var created = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func TestWriterCSV(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, CSV, UserColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(UserRow(model.User{ID: "u1", Name: "Anna, Jr", Email: "a@x", Role: model.RoleCustomer, CreatedAt: created})...))
	require.NoError(t, w.Close())

	want := "id,name,email,role,created_at\n" +
		"u1,\"Anna, Jr\",a@x,customer,2025-06-01T08:30:00Z\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 1, w.Rows())
}

func TestWriterJSON(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, JSON, ProductColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(ProductRow(model.Product{ID: "p1", Name: "Food", CategoryID: "c1", Price: 100, Stock: 3, CreatedAt: created})...))
	require.NoError(t, w.Write(ProductRow(model.Product{ID: "p2", Name: "Toy", Price: 50, CreatedAt: created})...))
	require.NoError(t, w.Close())

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0]["id"])
	assert.Equal(t, float64(100), got[0]["price"])
	assert.Equal(t, "2025-06-01T08:30:00Z", got[1]["created_at"])
}

func TestWriterJSONEmpty(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, JSON, UserColumns)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "[]\n", buf.String())
}

func TestWriterRejectsWrongWidth(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, CSV, RevenueColumns)
	require.NoError(t, err)

	assert.Error(t, w.Write("2025-06-01", 1))
}

func TestOrderRowCountsUnits(t *testing.T) {
	row := OrderRow(model.Order{
		ID:     "o1",
		Number: "PC1",
		Items:  []model.OrderItem{{Quantity: 2}, {Quantity: 3}},
		Total:  500,
	})

	require.Len(t, row, len(OrderColumns))
	assert.Equal(t, 5, row[6])
	assert.Equal(t, int64(500), row[10])
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, CSV, ParseFormat("csv"))
	assert.Equal(t, JSON, ParseFormat("xml"))
	assert.Equal(t, "text/csv; charset=utf-8", CSV.ContentType())
}
