// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package aztable stores accounts in Azure Table Storage.
package aztable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/repository"
)

// DefaultTable is the table holding account entities.
const DefaultTable = "webuser"

// Entity property names.
const (
	propEmail                = "email"
	propName                 = "name"
	propOrganization         = "organization"
	propPasswordHash         = "passwordHash"
	propSecret               = "secret"
	propVerificationCode     = "verificationCode"
	propVerified             = "verified"
	propEverVerified         = "everVerified"
	propRecoveryCode         = "recoveryCode"
	propRecoveryCodeIssued   = "recoveryCodeIssued"
	propLicenseAgreedDate    = "licenseAgreedDate"
	propLicenseAgreedName    = "licenseAgreedName"
	propLicenseAgreedTitle   = "licenseAgreedTitle"
	propLicenseAgreedOrg     = "licenseAgreedOrganization"
	propLicenseAgreedVersion = "licenseAgreedVersion"
	propCreated              = "accountCreationDate"
)

var fieldProps = map[repository.Field]string{
	repository.FieldEmail:            propEmail,
	repository.FieldSecret:           propSecret,
	repository.FieldVerificationCode: propVerificationCode,
	repository.FieldRecoveryCode:     propRecoveryCode,
}

// tableClient is the subset of *aztables.Client the store uses.
type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Options configures the connection to the storage account.
type Options struct {
	Account  string
	Key      string // empty selects the default Azure credential chain
	Endpoint string // defaults to https://<account>.table.core.windows.net/
	Table    string
}

// Store is the Azure Table account store.
type Store struct {
	client tableClient
	now    func() time.Time
}

var _ repository.AccountStore = (*Store)(nil)

// New connects to the table service and creates the table if it is missing.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Account == "" {
		return nil, errors.New("azure storage account is required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = fmt.Sprintf("https://%s.table.core.windows.net/", opts.Account)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}

	var svc *aztables.ServiceClient
	if opts.Key != "" {
		cred, err := aztables.NewSharedKeyCredential(opts.Account, opts.Key)
		if err != nil {
			return nil, fmt.Errorf("azure shared key: %w", err)
		}
		svc, err = aztables.NewServiceClientWithSharedKey(opts.Endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure table client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		svc, err = aztables.NewServiceClient(opts.Endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure table client: %w", err)
		}
	}

	s := newStore(svc.NewClient(opts.Table), time.Now)
	if err := s.ensureTable(ctx, opts.Table); err != nil {
		return nil, err
	}
	return s, nil
}

func newStore(client tableClient, now func() time.Time) *Store {
	return &Store{client: client, now: now}
}

func (s *Store) ensureTable(ctx context.Context, table string) error {
	_, err := s.client.CreateTable(ctx, nil)
	if err == nil {
		slog.Info("azure_table_created", "table", table)
		return nil
	}
	if statusCode(err) == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("create table %s: %w", table, err)
}

// CreateAccount inserts a new unverified account. Email uniqueness is not
// checked here.
func (s *Store) CreateAccount(ctx context.Context, n models.NewAccount) (*models.Account, error) {
	a, err := models.Build(n, s.now())
	if err != nil {
		return nil, err
	}

	data, err := encodeEntity(a)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.AddEntity(ctx, data, nil)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", wrapError(err))
	}

	a.ETag = string(resp.ETag)
	return a, nil
}

// GetAccountByID retrieves an account by its row key.
func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	resp, err := s.client.GetEntity(ctx, models.PartitionKey, id, nil)
	if err != nil {
		return nil, wrapError(err)
	}
	return decodeEntity(resp.Value, string(resp.ETag))
}

// GetAccountByField returns the first account whose field equals value.
func (s *Store) GetAccountByField(ctx context.Context, field repository.Field, value string) (*models.Account, error) {
	prop, ok := fieldProps[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidField, field)
	}

	top := int32(1)
	filter := fmt.Sprintf("PartitionKey eq %s and %s eq %s", quote(models.PartitionKey), prop, quote(value))
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		if len(page.Entities) > 0 {
			return decodeEntity(page.Entities[0], "")
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateAccount replaces the stored entity if its etag still matches a.ETag.
// Replace mode drops properties that were cleared on a.
func (s *Store) UpdateAccount(ctx context.Context, a *models.Account) error {
	data, err := encodeEntity(a)
	if err != nil {
		return err
	}

	etag := azcore.ETag(a.ETag)
	resp, err := s.client.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return fmt.Errorf("update account: %w", wrapError(err))
	}

	a.ETag = string(resp.ETag)
	return nil
}

// DeleteAccount removes an account by its row key. A non-empty etag is sent
// as If-Match, so a changed account fails with ErrStale.
func (s *Store) DeleteAccount(ctx context.Context, id, etag string) error {
	var opts *aztables.DeleteEntityOptions
	if etag != "" {
		match := azcore.ETag(etag)
		opts = &aztables.DeleteEntityOptions{IfMatch: &match}
	}
	if _, err := s.client.DeleteEntity(ctx, models.PartitionKey, id, opts); err != nil {
		return wrapError(err)
	}
	return nil
}

// ListUnverifiedBefore returns accounts created before the given time that
// have never been verified.
func (s *Store) ListUnverifiedBefore(ctx context.Context, before time.Time) ([]*models.Account, error) {
	filter := fmt.Sprintf("PartitionKey eq %s and %s eq false and %s eq false and %s lt datetime'%s'",
		quote(models.PartitionKey), propVerified, propEverVerified, propCreated, before.UTC().Format(time.RFC3339))

	var accounts []*models.Account
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		for _, raw := range page.Entities {
			a, err := decodeEntity(raw, "")
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

// Ping checks that the table can be queried.
func (s *Store) Ping(ctx context.Context) error {
	top := int32(1)
	sel := "RowKey"
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top, Select: &sel})
	if _, err := pager.NextPage(ctx); err != nil {
		return wrapError(err)
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func statusCode(err error) int {
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// wrapError converts service errors to repository errors.
func wrapError(err error) error {
	switch statusCode(err) {
	case http.StatusNotFound:
		return repository.ErrNotFound
	case http.StatusConflict:
		return repository.ErrConflict
	case http.StatusPreconditionFailed:
		return repository.ErrStale
	}
	return err
}

func encodeEntity(a *models.Account) ([]byte, error) {
	props := map[string]any{
		propEmail:        a.Email,
		propName:         a.Name,
		propOrganization: a.Organization,
		propPasswordHash: a.PasswordHash,
		propSecret:       a.Secret,
		propVerified:     a.Verified,
		propEverVerified: a.EverVerified,
		propCreated:      aztables.EDMDateTime(a.CreatedAt.UTC()),
	}
	setString(props, propVerificationCode, a.VerificationCode)
	setString(props, propRecoveryCode, a.RecoveryCode)
	setTime(props, propRecoveryCodeIssued, a.RecoveryCodeIssued)
	setTime(props, propLicenseAgreedDate, a.LicenseAgreedDate)
	setString(props, propLicenseAgreedName, a.LicenseAgreedName)
	setString(props, propLicenseAgreedTitle, a.LicenseAgreedTitle)
	setString(props, propLicenseAgreedOrg, a.LicenseAgreedOrg)
	setString(props, propLicenseAgreedVersion, a.LicenseAgreedVersion)

	data, err := json.Marshal(aztables.EDMEntity{
		Entity:     aztables.Entity{PartitionKey: models.PartitionKey, RowKey: a.ID},
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("encode account entity: %w", err)
	}
	return data, nil
}

// decodeEntity is the only place a stored entity becomes an Account.
// A non-empty etag overrides the one embedded in the entity body.
func decodeEntity(raw []byte, etag string) (*models.Account, error) {
	var ent aztables.EDMEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return nil, fmt.Errorf("decode account entity: %w", err)
	}
	if etag == "" {
		etag = ent.ETag
	}

	p := ent.Properties
	a := &models.Account{
		ID:                   ent.RowKey,
		Email:                getString(p, propEmail),
		Name:                 getString(p, propName),
		Organization:         getString(p, propOrganization),
		PasswordHash:         getString(p, propPasswordHash),
		Secret:               getString(p, propSecret),
		VerificationCode:     optString(p, propVerificationCode),
		RecoveryCode:         optString(p, propRecoveryCode),
		RecoveryCodeIssued:   optTime(p, propRecoveryCodeIssued),
		LicenseAgreedDate:    optTime(p, propLicenseAgreedDate),
		LicenseAgreedName:    optString(p, propLicenseAgreedName),
		LicenseAgreedTitle:   optString(p, propLicenseAgreedTitle),
		LicenseAgreedOrg:     optString(p, propLicenseAgreedOrg),
		LicenseAgreedVersion: optString(p, propLicenseAgreedVersion),
		ETag:                 etag,
	}
	if v, ok := p[propVerified].(bool); ok {
		a.Verified = v
	}
	if v, ok := p[propEverVerified].(bool); ok {
		a.EverVerified = v
	}
	if t := optTime(p, propCreated); t != nil {
		a.CreatedAt = *t
	}
	return a, nil
}

func setString(props map[string]any, key string, v *string) {
	if v != nil {
		props[key] = *v
	}
}

func setTime(props map[string]any, key string, v *time.Time) {
	if v != nil {
		props[key] = aztables.EDMDateTime(v.UTC())
	}
}

func getString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func optString(props map[string]any, key string) *string {
	s, ok := props[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func optTime(props map[string]any, key string) *time.Time {
	switch v := props[key].(type) {
	case aztables.EDMDateTime:
		t := time.Time(v).UTC()
		return &t
	case time.Time:
		t := v.UTC()
		return &t
	}
	return nil
}
