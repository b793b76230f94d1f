package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/text/unicode/norm"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// Date layouts used by the accounting API
const (
	remoteDateLayout     = "2006-01-02"
	remoteDateTimeLayout = time.RFC3339
)

// RecordConverter implements sync.Converter. It is pure: no I/O, no side
// effects, deterministic for the same input. All field violations are
// collected in one pass so callers can report a complete error list.
type RecordConverter struct {
	validate *validator.Validate
}

// NewRecordConverter creates a new RecordConverter
func NewRecordConverter() *RecordConverter {
	return &RecordConverter{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ---------------------------------------------------------------------------
// Intermediate remote shapes (validated before serialization)
// ---------------------------------------------------------------------------

// remoteContact mirrors the accounting customer schema
type remoteContact struct {
	Name      string `validate:"required,max=255"`
	Email     string `validate:"omitempty,email"`
	Phone     string `validate:"omitempty,max=32"`
	Company   string `validate:"omitempty,max=255"`
	VATNumber string `validate:"omitempty,max=64"`
	Note      string `validate:"omitempty,max=2000"`
}

// remoteProduct mirrors the accounting article schema
type remoteProduct struct {
	SKU         string `validate:"required,max=64"`
	Name        string `validate:"required,max=255"`
	Description string `validate:"omitempty,max=2000"`
	Unit        string `validate:"omitempty,max=16"`
	Currency    string `validate:"required,iso4217"`
}

// remoteDocument mirrors the accounting sales document schema
type remoteDocument struct {
	DocumentNumber string `validate:"required,max=64"`
	CustomerName   string `validate:"required,max=255"`
	Currency       string `validate:"required,iso4217"`
}

// ---------------------------------------------------------------------------
// ToRemote
// ---------------------------------------------------------------------------

// ToRemote validates and converts a local record into the remote-shaped JSON
// payload. Violations from every field are returned together; a result with
// violations carries no payload.
func (c *RecordConverter) ToRemote(record *sync.Record) *sync.ConversionResult {
	result := &sync.ConversionResult{}

	if err := record.Validate(); err != nil {
		result.Violations = append(result.Violations, sync.FieldViolation{
			Field: "record", Rule: "shape", Message: err.Error(),
		})
		return result
	}

	var body []byte
	switch record.EntityType {
	case sync.EntityTypeContact:
		body = c.contactToRemote(record.Contact, &result.Violations)
	case sync.EntityTypeProduct:
		body = c.productToRemote(record.Product, &result.Violations)
	case sync.EntityTypeSalesDocument:
		body = c.documentToRemote(record.SalesDocument, &result.Violations)
	}

	if !result.Valid() {
		return result
	}

	// Round-trip unknown remote fields so a push never drops data the engine
	// does not model.
	for key, value := range record.Extra {
		body, _ = sjson.SetBytes(body, key, value)
	}

	result.Payload = &sync.RemotePayload{
		EntityType: record.EntityType,
		Body:       body,
	}
	return result
}

func (c *RecordConverter) contactToRemote(contact *sync.Contact, violations *[]sync.FieldViolation) []byte {
	rc := remoteContact{
		Name:      sanitize(contact.Name),
		Email:     strings.TrimSpace(contact.Email),
		Phone:     sanitize(contact.Phone),
		Company:   sanitize(contact.Company),
		VATNumber: sanitize(contact.TaxNumber),
		Note:      sanitize(contact.Notes),
	}
	c.collectStructViolations(rc, violations)

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "name", rc.Name)
	body = setOptional(body, "email", rc.Email)
	body = setOptional(body, "phone", rc.Phone)
	body = setOptional(body, "company", rc.Company)
	body = setOptional(body, "vat_number", rc.VATNumber)
	body = setOptional(body, "note", rc.Note)
	return body
}

func (c *RecordConverter) productToRemote(product *sync.Product, violations *[]sync.FieldViolation) []byte {
	rp := remoteProduct{
		SKU:         sanitize(product.Code),
		Name:        sanitize(product.Name),
		Description: sanitize(product.Description),
		Unit:        sanitize(product.Unit),
		Currency:    strings.ToUpper(strings.TrimSpace(product.CurrencyCode)),
	}
	c.collectStructViolations(rp, violations)

	if product.UnitPrice.IsNegative() {
		*violations = append(*violations, sync.FieldViolation{
			Field: "unitPrice", Rule: "min", Message: "unit price must not be negative",
		})
	}
	if product.TaxRate.IsNegative() || product.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		*violations = append(*violations, sync.FieldViolation{
			Field: "taxRate", Rule: "range", Message: "tax rate must be between 0 and 100",
		})
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "sku", rp.SKU)
	body, _ = sjson.SetBytes(body, "name", rp.Name)
	body = setOptional(body, "description", rp.Description)
	body = setOptional(body, "unit", rp.Unit)
	body, _ = sjson.SetBytes(body, "price", product.UnitPrice.StringFixed(2))
	body, _ = sjson.SetBytes(body, "currency", rp.Currency)
	body, _ = sjson.SetBytes(body, "tax_rate", product.TaxRate.StringFixed(2))
	return body
}

func (c *RecordConverter) documentToRemote(doc *sync.SalesDocument, violations *[]sync.FieldViolation) []byte {
	rd := remoteDocument{
		DocumentNumber: sanitize(doc.DocumentNumber),
		CustomerName:   sanitize(doc.CustomerName),
		Currency:       strings.ToUpper(strings.TrimSpace(doc.CurrencyCode)),
	}
	c.collectStructViolations(rd, violations)

	if doc.IssueDate.IsZero() {
		*violations = append(*violations, sync.FieldViolation{
			Field: "issueDate", Rule: "required", Message: "issue date is required",
		})
	}
	if len(doc.Lines) == 0 {
		*violations = append(*violations, sync.FieldViolation{
			Field: "lines", Rule: "min", Message: "document must have at least one line",
		})
	}
	for i, line := range doc.Lines {
		if !line.Quantity.IsPositive() {
			*violations = append(*violations, sync.FieldViolation{
				Field: lineField(i, "quantity"), Rule: "gt", Message: "quantity must be positive",
			})
		}
		if line.UnitPrice.IsNegative() {
			*violations = append(*violations, sync.FieldViolation{
				Field: lineField(i, "unitPrice"), Rule: "min", Message: "unit price must not be negative",
			})
		}
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "document_number", rd.DocumentNumber)
	body, _ = sjson.SetBytes(body, "customer_name", rd.CustomerName)
	if !doc.IssueDate.IsZero() {
		body, _ = sjson.SetBytes(body, "issue_date", doc.IssueDate.Format(remoteDateLayout))
	}
	if doc.DueDate != nil {
		body, _ = sjson.SetBytes(body, "due_date", doc.DueDate.Format(remoteDateLayout))
	}
	body, _ = sjson.SetBytes(body, "currency", rd.Currency)
	body, _ = sjson.SetBytes(body, "total", doc.Total.StringFixed(2))
	for i, line := range doc.Lines {
		prefix := "lines." + strconv.Itoa(i)
		body, _ = sjson.SetBytes(body, prefix+".description", sanitize(line.Description))
		body, _ = sjson.SetBytes(body, prefix+".quantity", line.Quantity.String())
		body, _ = sjson.SetBytes(body, prefix+".unit_price", line.UnitPrice.StringFixed(2))
	}
	return body
}

// ---------------------------------------------------------------------------
// ToLocal
// ---------------------------------------------------------------------------

// knownRemoteFields lists the top-level remote fields the engine models;
// everything else lands in the record's Extra bag.
var knownRemoteFields = map[sync.EntityType][]string{
	sync.EntityTypeContact:       {"name", "email", "phone", "company", "vat_number", "note"},
	sync.EntityTypeProduct:       {"sku", "name", "description", "unit", "price", "currency", "tax_rate"},
	sync.EntityTypeSalesDocument: {"document_number", "customer_name", "issue_date", "due_date", "currency", "total", "lines"},
}

// ToLocal converts a remote payload into the local record shape. Unknown
// remote fields are preserved in Extra. Violations are collected in one pass.
func (c *RecordConverter) ToLocal(payload *sync.RemotePayload) *sync.ConversionResult {
	result := &sync.ConversionResult{}

	if !payload.EntityType.IsValid() {
		result.Violations = append(result.Violations, sync.FieldViolation{
			Field: "entityType", Rule: "oneof", Message: "unknown entity type",
		})
		return result
	}
	if !gjson.ValidBytes(payload.Body) {
		result.Violations = append(result.Violations, sync.FieldViolation{
			Field: "body", Rule: "json", Message: "remote payload is not valid JSON",
		})
		return result
	}

	doc := gjson.ParseBytes(payload.Body)
	record := &sync.Record{
		EntityType: payload.EntityType,
		Extra:      extraFields(doc, payload.EntityType),
	}

	switch payload.EntityType {
	case sync.EntityTypeContact:
		record.Contact = contactFromRemote(doc, &result.Violations)
	case sync.EntityTypeProduct:
		record.Product = productFromRemote(doc, &result.Violations)
	case sync.EntityTypeSalesDocument:
		record.SalesDocument = documentFromRemote(doc, &result.Violations)
	}

	if !result.Valid() {
		return result
	}
	result.Record = record
	return result
}

func contactFromRemote(doc gjson.Result, violations *[]sync.FieldViolation) *sync.Contact {
	requireString(doc, "name", violations)
	return &sync.Contact{
		Name:      sanitize(doc.Get("name").String()),
		Email:     strings.TrimSpace(doc.Get("email").String()),
		Phone:     sanitize(doc.Get("phone").String()),
		Company:   sanitize(doc.Get("company").String()),
		TaxNumber: sanitize(doc.Get("vat_number").String()),
		Notes:     sanitize(doc.Get("note").String()),
	}
}

func productFromRemote(doc gjson.Result, violations *[]sync.FieldViolation) *sync.Product {
	requireString(doc, "sku", violations)
	requireString(doc, "name", violations)

	price := parseDecimal(doc.Get("price"), "price", violations)
	taxRate := parseDecimal(doc.Get("tax_rate"), "tax_rate", violations)

	return &sync.Product{
		Code:         sanitize(doc.Get("sku").String()),
		Name:         sanitize(doc.Get("name").String()),
		Description:  sanitize(doc.Get("description").String()),
		Unit:         sanitize(doc.Get("unit").String()),
		UnitPrice:    price,
		CurrencyCode: strings.ToUpper(doc.Get("currency").String()),
		TaxRate:      taxRate,
	}
}

func documentFromRemote(doc gjson.Result, violations *[]sync.FieldViolation) *sync.SalesDocument {
	requireString(doc, "document_number", violations)
	requireString(doc, "customer_name", violations)

	issueDate := parseDate(doc.Get("issue_date"), "issue_date", violations)
	var dueDate *time.Time
	if raw := doc.Get("due_date"); raw.Exists() && raw.String() != "" {
		d := parseDate(raw, "due_date", violations)
		if !d.IsZero() {
			dueDate = &d
		}
	}

	var lines []sync.DocumentLine
	doc.Get("lines").ForEach(func(_, line gjson.Result) bool {
		lines = append(lines, sync.DocumentLine{
			Description: sanitize(line.Get("description").String()),
			Quantity:    parseDecimal(line.Get("quantity"), "lines.quantity", violations),
			UnitPrice:   parseDecimal(line.Get("unit_price"), "lines.unit_price", violations),
		})
		return true
	})
	if len(lines) == 0 {
		*violations = append(*violations, sync.FieldViolation{
			Field: "lines", Rule: "min", Message: "document must have at least one line",
		})
	}

	return &sync.SalesDocument{
		DocumentNumber: sanitize(doc.Get("document_number").String()),
		CustomerName:   sanitize(doc.Get("customer_name").String()),
		IssueDate:      issueDate,
		DueDate:        dueDate,
		CurrencyCode:   strings.ToUpper(doc.Get("currency").String()),
		Lines:          lines,
		Total:          parseDecimal(doc.Get("total"), "total", violations),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Fingerprint returns the content hash stored as a mapping's LastLocalHash.
// The converter builds payload bodies deterministically, so equal records
// always produce equal fingerprints.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// sanitize normalizes text for the remote API: Unicode NFC, control and
// zero-width characters stripped (newline and tab kept), surrounding
// whitespace trimmed. Remote-side validation rejects these characters with
// opaque errors, so they are removed before any network call.
func sanitize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff': // zero-width and BOM
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// collectStructViolations runs validator tags and folds failures into the
// violation list using the struct field name.
func (c *RecordConverter) collectStructViolations(v any, violations *[]sync.FieldViolation) {
	err := c.validate.Struct(v)
	if err == nil {
		return
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		*violations = append(*violations, sync.FieldViolation{
			Field: "record", Rule: "struct", Message: err.Error(),
		})
		return
	}
	for _, fe := range validationErrors {
		*violations = append(*violations, sync.FieldViolation{
			Field:   lowerFirst(fe.Field()),
			Rule:    fe.Tag(),
			Message: "failed " + fe.Tag() + " validation",
		})
	}
}

func requireString(doc gjson.Result, field string, violations *[]sync.FieldViolation) {
	if strings.TrimSpace(doc.Get(field).String()) == "" {
		*violations = append(*violations, sync.FieldViolation{
			Field: field, Rule: "required", Message: field + " is required",
		})
	}
}

func parseDecimal(raw gjson.Result, field string, violations *[]sync.FieldViolation) decimal.Decimal {
	if !raw.Exists() || raw.String() == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		*violations = append(*violations, sync.FieldViolation{
			Field: field, Rule: "numeric", Message: "not a valid decimal value",
		})
		return decimal.Zero
	}
	return d
}

func parseDate(raw gjson.Result, field string, violations *[]sync.FieldViolation) time.Time {
	if !raw.Exists() || raw.String() == "" {
		*violations = append(*violations, sync.FieldViolation{
			Field: field, Rule: "required", Message: field + " is required",
		})
		return time.Time{}
	}
	if t, err := time.Parse(remoteDateLayout, raw.String()); err == nil {
		return t
	}
	if t, err := time.Parse(remoteDateTimeLayout, raw.String()); err == nil {
		return t
	}
	*violations = append(*violations, sync.FieldViolation{
		Field: field, Rule: "date", Message: "not a valid date",
	})
	return time.Time{}
}

// extraFields collects top-level remote fields the engine does not model
func extraFields(doc gjson.Result, entityType sync.EntityType) map[string]any {
	known := make(map[string]bool, len(knownRemoteFields[entityType]))
	for _, f := range knownRemoteFields[entityType] {
		known[f] = true
	}
	var extra map[string]any
	doc.ForEach(func(key, value gjson.Result) bool {
		if !known[key.String()] {
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[key.String()] = value.Value()
		}
		return true
	})
	return extra
}

func setOptional(body []byte, key, value string) []byte {
	if value == "" {
		return body
	}
	out, _ := sjson.SetBytes(body, key, value)
	return out
}

func lineField(i int, name string) string {
	return "lines[" + strconv.Itoa(i) + "]." + name
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Ensure RecordConverter implements sync.Converter
var _ sync.Converter = (*RecordConverter)(nil)
