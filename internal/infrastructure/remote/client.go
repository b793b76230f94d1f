package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// entityPaths maps entity types onto accounting API collections
var entityPaths = map[sync.EntityType]string{
	sync.EntityTypeContact:       "/v1/customers",
	sync.EntityTypeProduct:       "/v1/articles",
	sync.EntityTypeSalesDocument: "/v1/sales_documents",
}

// CredentialProvider resolves per-tenant API credentials. The sync engine
// never sees credentials; the client injects them per request.
type CredentialProvider interface {
	APIKey(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// StaticCredentialProvider serves keys from a fixed map with an optional
// fallback key. Suitable for configuration-driven single-key deployments.
type StaticCredentialProvider struct {
	Keys       map[uuid.UUID]string
	DefaultKey string
}

// APIKey returns the tenant's key or the fallback
func (p *StaticCredentialProvider) APIKey(_ context.Context, tenantID uuid.UUID) (string, error) {
	if key, ok := p.Keys[tenantID]; ok {
		return key, nil
	}
	if p.DefaultKey != "" {
		return p.DefaultKey, nil
	}
	return "", sync.ErrRemoteAuthFailed
}

// ClientConfig holds accounting API connection settings
type ClientConfig struct {
	// BaseURL is the accounting API root, e.g. https://api.accounting.example
	BaseURL string
	// Timeout bounds one HTTP round trip
	Timeout time.Duration
	// PageSize is the default page size for list calls
	PageSize int
}

// DefaultClientConfig returns the standard client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:  15 * time.Second,
		PageSize: 100,
	}
}

// Client talks to the external accounting API. It implements
// sync.RemoteClient and converts HTTP failures into the sentinel errors the
// classifier understands.
type Client struct {
	config      ClientConfig
	credentials CredentialProvider
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates an accounting API client
func NewClient(config ClientConfig, credentials CredentialProvider, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:      config,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger,
	}
}

// builder returns a requests.Builder pre-configured for one tenant
func (c *Client) builder(ctx context.Context, tenantID uuid.UUID) (*requests.Builder, error) {
	key, err := c.credentials.APIKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return requests.
		URL(c.config.BaseURL).
		Client(c.httpClient).
		Header("X-Api-Key", key).
		Header("Accept", "application/json"), nil
}

// Create creates a remote record and returns its identity
func (c *Client) Create(ctx context.Context, tenantID uuid.UUID, payload *sync.RemotePayload) (*sync.RemoteObject, error) {
	path, ok := entityPaths[payload.EntityType]
	if !ok {
		return nil, sync.ErrInvalidEntityType
	}

	b, err := c.builder(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var respBody bytes.Buffer
	var errBody string
	err = b.
		Path(path).
		Post().
		BodyBytes(payload.Body).
		ContentType("application/json").
		ToBytesBuffer(&respBody).
		AddValidator(requests.ValidatorHandler(
			requests.CheckStatus(http.StatusOK, http.StatusCreated),
			requests.ToString(&errBody),
		)).
		Fetch(ctx)
	if err != nil {
		return nil, c.mapError(err, errBody)
	}
	return parseRemoteObject(respBody.Bytes())
}

// Update updates an existing remote record and returns the new version
func (c *Client) Update(ctx context.Context, tenantID uuid.UUID, remoteID string, payload *sync.RemotePayload) (*sync.RemoteObject, error) {
	path, ok := entityPaths[payload.EntityType]
	if !ok {
		return nil, sync.ErrInvalidEntityType
	}

	b, err := c.builder(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var respBody bytes.Buffer
	var errBody string
	err = b.
		Path(path+"/"+remoteID).
		Put().
		BodyBytes(payload.Body).
		ContentType("application/json").
		ToBytesBuffer(&respBody).
		AddValidator(requests.ValidatorHandler(
			requests.CheckStatus(http.StatusOK),
			requests.ToString(&errBody),
		)).
		Fetch(ctx)
	if err != nil {
		return nil, c.mapError(err, errBody)
	}
	return parseRemoteObject(respBody.Bytes())
}

// GetByID fetches one remote record
func (c *Client) GetByID(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, remoteID string) (*sync.RemotePayload, error) {
	path, ok := entityPaths[entityType]
	if !ok {
		return nil, sync.ErrInvalidEntityType
	}

	b, err := c.builder(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var respBody bytes.Buffer
	var errBody string
	err = b.
		Path(path+"/"+remoteID).
		ToBytesBuffer(&respBody).
		AddValidator(requests.ValidatorHandler(
			requests.CheckStatus(http.StatusOK),
			requests.ToString(&errBody),
		)).
		Fetch(ctx)
	if err != nil {
		return nil, c.mapError(err, errBody)
	}
	return itemToPayload(entityType, respBody.Bytes())
}

// List fetches remote records matching the filter, following pagination
// cursors until the collection is exhausted.
func (c *Client) List(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, filter sync.RemoteListFilter) ([]sync.RemotePayload, error) {
	path, ok := entityPaths[entityType]
	if !ok {
		return nil, sync.ErrInvalidEntityType
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = c.config.PageSize
	}

	var result []sync.RemotePayload
	cursor := ""
	for {
		b, err := c.builder(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		b = b.Path(path).Param("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			b = b.Param("cursor", cursor)
		}
		if filter.UpdatedSince != nil {
			b = b.Param("updated_since", filter.UpdatedSince.UTC().Format(time.RFC3339))
		}

		var respBody bytes.Buffer
		var errBody string
		err = b.
			ToBytesBuffer(&respBody).
			AddValidator(requests.ValidatorHandler(
				requests.CheckStatus(http.StatusOK),
				requests.ToString(&errBody),
			)).
			Fetch(ctx)
		if err != nil {
			return nil, c.mapError(err, errBody)
		}

		page := gjson.ParseBytes(respBody.Bytes())
		var itemErr error
		page.Get("items").ForEach(func(_, item gjson.Result) bool {
			payload, err := itemToPayload(entityType, []byte(item.Raw))
			if err != nil {
				itemErr = err
				return false
			}
			result = append(result, *payload)
			return true
		})
		if itemErr != nil {
			return nil, itemErr
		}

		cursor = page.Get("next_cursor").String()
		if cursor == "" {
			return result, nil
		}
	}
}

// mapError translates HTTP failures into sentinel errors for the classifier
func (c *Client) mapError(err error, body string) error {
	switch {
	case requests.HasStatusErr(err, http.StatusTooManyRequests):
		return fmt.Errorf("%w: %s", sync.ErrRemoteRateLimited, body)
	case requests.HasStatusErr(err, http.StatusUnauthorized, http.StatusForbidden):
		return fmt.Errorf("%w: %s", sync.ErrRemoteAuthFailed, body)
	case requests.HasStatusErr(err, http.StatusNotFound):
		return sync.ErrRemoteNotFound
	case requests.HasStatusErr(err,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout):
		return fmt.Errorf("%w: %s", sync.ErrRemoteUnavailable, body)
	}
	// Any remaining 4xx is a permanent rejection of this request; retrying
	// cannot change the outcome.
	for status := 400; status < 500; status++ {
		if requests.HasStatusErr(err, status) {
			return &sync.RemoteAPIError{StatusCode: status, Body: body}
		}
	}
	// Transport-level failure: timeout, DNS, connection refused
	return fmt.Errorf("%w: %v", sync.ErrRemoteUnavailable, err)
}

// parseRemoteObject extracts the identity from a create/update response
func parseRemoteObject(body []byte) (*sync.RemoteObject, error) {
	doc := gjson.ParseBytes(body)
	remoteID := doc.Get("id").String()
	if remoteID == "" {
		return nil, &sync.RemoteAPIError{StatusCode: http.StatusOK, Body: "response missing record id"}
	}
	return &sync.RemoteObject{
		RemoteID: remoteID,
		Version:  doc.Get("version").String(),
	}, nil
}

// itemToPayload strips the envelope fields and returns the record body
func itemToPayload(entityType sync.EntityType, item []byte) (*sync.RemotePayload, error) {
	doc := gjson.ParseBytes(item)
	remoteID := doc.Get("id").String()
	if remoteID == "" {
		return nil, &sync.RemoteAPIError{StatusCode: http.StatusOK, Body: "record missing id"}
	}

	body := item
	for _, envelope := range []string{"id", "version"} {
		stripped, err := sjson.DeleteBytes(body, envelope)
		if err == nil {
			body = stripped
		}
	}

	return &sync.RemotePayload{
		EntityType: entityType,
		RemoteID:   remoteID,
		Version:    doc.Get("version").String(),
		Body:       body,
	}, nil
}

// Ensure Client implements sync.RemoteClient
var _ sync.RemoteClient = (*Client)(nil)
