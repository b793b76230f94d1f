package convert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

func validContactRecord() *sync.Record {
	return &sync.Record{
		EntityType: sync.EntityTypeContact,
		LocalID:    uuid.New(),
		UpdatedAt:  time.Now(),
		Contact: &sync.Contact{
			Name:    "Ada Lovelace",
			Email:   "ada@example.com",
			Company: "Analytical Engines Ltd",
		},
	}
}

func validDocumentRecord() *sync.Record {
	due := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	return &sync.Record{
		EntityType: sync.EntityTypeSalesDocument,
		LocalID:    uuid.New(),
		UpdatedAt:  time.Now(),
		SalesDocument: &sync.SalesDocument{
			DocumentNumber: "SO-1001",
			CustomerName:   "Acme GmbH",
			IssueDate:      time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			DueDate:        &due,
			CurrencyCode:   "EUR",
			Lines: []sync.DocumentLine{
				{Description: "Widget", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("19.99")},
			},
			Total: decimal.RequireFromString("59.97"),
		},
	}
}

// ---------------------------------------------------------------------------
// ToRemote
// ---------------------------------------------------------------------------

func TestRecordConverter_ToRemote_Contact(t *testing.T) {
	converter := NewRecordConverter()

	t.Run("Valid contact produces remote body", func(t *testing.T) {
		result := converter.ToRemote(validContactRecord())
		require.True(t, result.Valid())
		require.NotNil(t, result.Payload)

		body := gjson.ParseBytes(result.Payload.Body)
		assert.Equal(t, "Ada Lovelace", body.Get("name").String())
		assert.Equal(t, "ada@example.com", body.Get("email").String())
		assert.False(t, body.Get("phone").Exists())
	})

	t.Run("Conversion is deterministic", func(t *testing.T) {
		record := validContactRecord()
		first := converter.ToRemote(record)
		second := converter.ToRemote(record)
		require.True(t, first.Valid())
		assert.Equal(t, first.Payload.Body, second.Payload.Body)
		assert.Equal(t, Fingerprint(first.Payload.Body), Fingerprint(second.Payload.Body))
	})

	t.Run("Normalizes zero-width and control characters", func(t *testing.T) {
		record := validContactRecord()
		record.Contact.Name = "  Ada\u200bLove\u200dlace  "
		record.Contact.Notes = "line one\nline two\ttabbed"

		result := converter.ToRemote(record)
		require.True(t, result.Valid())

		body := gjson.ParseBytes(result.Payload.Body)
		assert.Equal(t, "AdaLovelace", body.Get("name").String())
		assert.Equal(t, "line one\nline two\ttabbed", body.Get("note").String())
	})

	t.Run("Collects all violations in one pass", func(t *testing.T) {
		record := validContactRecord()
		record.Contact.Name = ""
		record.Contact.Email = "not-an-email"

		result := converter.ToRemote(record)
		require.False(t, result.Valid())
		assert.Nil(t, result.Payload)
		require.Len(t, result.Violations, 2)

		fields := []string{result.Violations[0].Field, result.Violations[1].Field}
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "email")

		cerr := result.Err()
		require.NotNil(t, cerr)
		assert.Equal(t, sync.ErrorClassValidation, cerr.Class)
		assert.False(t, cerr.Retryable())
	})

	t.Run("Unknown remote fields survive the round trip", func(t *testing.T) {
		record := validContactRecord()
		record.Extra = map[string]any{"payment_terms_days": float64(30)}

		result := converter.ToRemote(record)
		require.True(t, result.Valid())
		assert.Equal(t, int64(30), gjson.GetBytes(result.Payload.Body, "payment_terms_days").Int())
	})
}

func TestRecordConverter_ToRemote_Product(t *testing.T) {
	converter := NewRecordConverter()

	record := &sync.Record{
		EntityType: sync.EntityTypeProduct,
		LocalID:    uuid.New(),
		Product: &sync.Product{
			Code:         "WID-1",
			Name:         "Widget",
			Unit:         "pcs",
			UnitPrice:    decimal.RequireFromString("12.5"),
			CurrencyCode: "eur",
			TaxRate:      decimal.NewFromInt(19),
		},
	}

	t.Run("Money serializes with fixed scale", func(t *testing.T) {
		result := converter.ToRemote(record)
		require.True(t, result.Valid())

		body := gjson.ParseBytes(result.Payload.Body)
		assert.Equal(t, "12.50", body.Get("price").String())
		assert.Equal(t, "19.00", body.Get("tax_rate").String())
		assert.Equal(t, "EUR", body.Get("currency").String())
	})

	t.Run("Negative price and bad currency both reported", func(t *testing.T) {
		bad := *record
		badProduct := *record.Product
		badProduct.UnitPrice = decimal.RequireFromString("-1")
		badProduct.CurrencyCode = "EURO"
		bad.Product = &badProduct

		result := converter.ToRemote(&bad)
		require.False(t, result.Valid())
		require.Len(t, result.Violations, 2)
	})
}

func TestRecordConverter_ToRemote_SalesDocument(t *testing.T) {
	converter := NewRecordConverter()

	t.Run("Valid document produces lines", func(t *testing.T) {
		result := converter.ToRemote(validDocumentRecord())
		require.True(t, result.Valid())

		body := gjson.ParseBytes(result.Payload.Body)
		assert.Equal(t, "SO-1001", body.Get("document_number").String())
		assert.Equal(t, "2025-07-01", body.Get("issue_date").String())
		assert.Equal(t, int64(1), body.Get("lines.#").Int())
		assert.Equal(t, "19.99", body.Get("lines.0.unit_price").String())
	})

	t.Run("Missing customer name reported alongside other violations", func(t *testing.T) {
		record := validDocumentRecord()
		record.SalesDocument.CustomerName = ""
		record.SalesDocument.Lines = nil

		result := converter.ToRemote(record)
		require.False(t, result.Valid())

		var fields []string
		for _, v := range result.Violations {
			fields = append(fields, v.Field)
		}
		assert.Contains(t, fields, "customerName")
		assert.Contains(t, fields, "lines")
	})

	t.Run("Non-positive line quantity is rejected", func(t *testing.T) {
		record := validDocumentRecord()
		record.SalesDocument.Lines[0].Quantity = decimal.Zero

		result := converter.ToRemote(record)
		require.False(t, result.Valid())
		assert.Equal(t, "lines[0].quantity", result.Violations[0].Field)
	})
}

// ---------------------------------------------------------------------------
// ToLocal
// ---------------------------------------------------------------------------

func TestRecordConverter_ToLocal(t *testing.T) {
	converter := NewRecordConverter()

	t.Run("Contact payload converts with extras preserved", func(t *testing.T) {
		payload := &sync.RemotePayload{
			EntityType: sync.EntityTypeContact,
			RemoteID:   "ACC-CUST-7",
			Body:       []byte(`{"name":"Acme GmbH","email":"office@acme.test","credit_limit":"5000.00"}`),
		}

		result := converter.ToLocal(payload)
		require.True(t, result.Valid())
		require.NotNil(t, result.Record)
		assert.Equal(t, "Acme GmbH", result.Record.Contact.Name)
		assert.Equal(t, "5000.00", result.Record.Extra["credit_limit"])
	})

	t.Run("Product payload parses money as decimals", func(t *testing.T) {
		payload := &sync.RemotePayload{
			EntityType: sync.EntityTypeProduct,
			Body:       []byte(`{"sku":"WID-1","name":"Widget","price":"12.50","currency":"EUR","tax_rate":"19.00"}`),
		}

		result := converter.ToLocal(payload)
		require.True(t, result.Valid())
		assert.True(t, result.Record.Product.UnitPrice.Equal(decimal.RequireFromString("12.5")))
	})

	t.Run("Document payload with missing fields reports every violation", func(t *testing.T) {
		payload := &sync.RemotePayload{
			EntityType: sync.EntityTypeSalesDocument,
			Body:       []byte(`{"currency":"EUR"}`),
		}

		result := converter.ToLocal(payload)
		require.False(t, result.Valid())
		assert.Nil(t, result.Record)

		var fields []string
		for _, v := range result.Violations {
			fields = append(fields, v.Field)
		}
		assert.Contains(t, fields, "document_number")
		assert.Contains(t, fields, "customer_name")
		assert.Contains(t, fields, "issue_date")
		assert.Contains(t, fields, "lines")
	})

	t.Run("Invalid JSON body is a single violation", func(t *testing.T) {
		payload := &sync.RemotePayload{
			EntityType: sync.EntityTypeContact,
			Body:       []byte(`{"name":`),
		}

		result := converter.ToLocal(payload)
		require.False(t, result.Valid())
		require.Len(t, result.Violations, 1)
		assert.Equal(t, "body", result.Violations[0].Field)
	})

	t.Run("Round trip through both directions is stable", func(t *testing.T) {
		pushed := converter.ToRemote(validDocumentRecord())
		require.True(t, pushed.Valid())

		pulled := converter.ToLocal(pushed.Payload)
		require.True(t, pulled.Valid())

		pulled.Record.LocalID = uuid.New()
		repushed := converter.ToRemote(pulled.Record)
		require.True(t, repushed.Valid())
		assert.Equal(t, string(pushed.Payload.Body), string(repushed.Payload.Body))
	})
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`{"name":"Ada"}`))
	b := Fingerprint([]byte(`{"name":"Ada"}`))
	c := Fingerprint([]byte(`{"name":"Grace"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "sha256:")
}
