// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package aztable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/repository"
)

func init() {
	models.PasswordCost = bcrypt.MinCost
}

type storedEntity struct {
	data []byte
	etag string
}

// fakeTable is an in-memory table that evaluates the filters the store builds.
type fakeTable struct {
	mu       sync.Mutex
	rows     map[string]storedEntity
	order    []string
	seq      int
	created  bool
	failList error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]storedEntity{}}
}

func responseError(status int) error {
	return runtime.NewResponseError(&http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    httptest.NewRequest(http.MethodGet, "https://example.table.core.windows.net/webuser", nil),
	})
}

func (f *fakeTable) nextETag() string {
	f.seq++
	return fmt.Sprintf(`W/"%d"`, f.seq)
}

func (f *fakeTable) CreateTable(context.Context, *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return aztables.CreateTableResponse{}, responseError(http.StatusConflict)
	}
	f.created = true
	return aztables.CreateTableResponse{}, nil
}

func (f *fakeTable) AddEntity(_ context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ent aztables.Entity
	if err := json.Unmarshal(entity, &ent); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	if _, ok := f.rows[ent.RowKey]; ok {
		return aztables.AddEntityResponse{}, responseError(http.StatusConflict)
	}
	etag := f.nextETag()
	f.rows[ent.RowKey] = storedEntity{data: entity, etag: etag}
	f.order = append(f.order, ent.RowKey)
	return aztables.AddEntityResponse{ETag: azETag(etag)}, nil
}

func (f *fakeTable) GetEntity(_ context.Context, _, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rk]
	if !ok {
		return aztables.GetEntityResponse{}, responseError(http.StatusNotFound)
	}
	return aztables.GetEntityResponse{ETag: azETag(row.etag), Value: row.data}, nil
}

func (f *fakeTable) UpdateEntity(_ context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ent aztables.Entity
	if err := json.Unmarshal(entity, &ent); err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	row, ok := f.rows[ent.RowKey]
	if !ok {
		return aztables.UpdateEntityResponse{}, responseError(http.StatusNotFound)
	}
	if options == nil || options.IfMatch == nil || string(*options.IfMatch) != row.etag {
		return aztables.UpdateEntityResponse{}, responseError(http.StatusPreconditionFailed)
	}
	etag := f.nextETag()
	f.rows[ent.RowKey] = storedEntity{data: entity, etag: etag}
	return aztables.UpdateEntityResponse{ETag: azETag(etag)}, nil
}

func (f *fakeTable) DeleteEntity(_ context.Context, _, rk string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rk]
	if !ok {
		return aztables.DeleteEntityResponse{}, responseError(http.StatusNotFound)
	}
	if options != nil && options.IfMatch != nil && string(*options.IfMatch) != row.etag {
		return aztables.DeleteEntityResponse{}, responseError(http.StatusPreconditionFailed)
	}
	delete(f.rows, rk)
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTable) NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	done := false
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return !done },
		Fetcher: func(context.Context, *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			done = true
			return f.list(options)
		},
	})
}

func (f *fakeTable) list(options *aztables.ListEntitiesOptions) (aztables.ListEntitiesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return aztables.ListEntitiesResponse{}, f.failList
	}

	var resp aztables.ListEntitiesResponse
	for _, rk := range f.order {
		row, ok := f.rows[rk]
		if !ok {
			continue
		}
		var props map[string]any
		if err := json.Unmarshal(row.data, &props); err != nil {
			return resp, err
		}
		if options != nil && options.Filter != nil && !matches(props, *options.Filter) {
			continue
		}
		props["odata.etag"] = row.etag
		data, err := json.Marshal(props)
		if err != nil {
			return resp, err
		}
		resp.Entities = append(resp.Entities, data)
		if options != nil && options.Top != nil && len(resp.Entities) == int(*options.Top) {
			break
		}
	}
	return resp, nil
}

// matches evaluates "name op value" clauses joined by "and".
func matches(props map[string]any, filter string) bool {
	for _, clause := range strings.Split(filter, " and ") {
		parts := strings.SplitN(clause, " ", 3)
		name, op, literal := parts[0], parts[1], parts[2]
		switch {
		case strings.HasPrefix(literal, "datetime'"):
			want, _ := time.Parse(time.RFC3339, strings.TrimSuffix(strings.TrimPrefix(literal, "datetime'"), "'"))
			s, _ := props[name].(string)
			got, err := time.Parse(time.RFC3339Nano, s)
			if err != nil || op != "lt" || !got.Before(want) {
				return false
			}
		case literal == "true" || literal == "false":
			b, _ := props[name].(bool)
			if op != "eq" || b != (literal == "true") {
				return false
			}
		default:
			want := strings.ReplaceAll(strings.Trim(literal, "'"), "''", "'")
			if s, _ := props[name].(string); op != "eq" || s != want {
				return false
			}
		}
	}
	return true
}

func newTestStore(t *testing.T) (*Store, *fakeTable) {
	t.Helper()
	table := newFakeTable()
	s := newStore(table, time.Now)
	require.NoError(t, s.ensureTable(context.Background(), DefaultTable))
	return s, table
}

func createAccount(t *testing.T, s *Store, email string) *models.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), models.NewAccount{Email: email, Password: "pw123456", Name: "Ada"})
	require.NoError(t, err)
	return a
}

func TestEnsureTable_AlreadyExists(t *testing.T) {
	s, _ := newTestStore(t)

	assert.NoError(t, s.ensureTable(context.Background(), DefaultTable))
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "ada@example.com")

	got, err := s.GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Email, got.Email)
	assert.Equal(t, a.Secret, got.Secret)
	assert.Equal(t, a.PasswordHash, got.PasswordHash)
	assert.Equal(t, *a.VerificationCode, *got.VerificationCode)
	assert.False(t, got.Verified)
	assert.Equal(t, a.ETag, got.ETag)
	assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestGetAccountByID_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetAccountByID(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetAccountByField(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "other@example.com")
	a := createAccount(t, s, "o'brien@example.com")

	byEmail, err := s.GetAccountByField(ctx, repository.FieldEmail, "o'brien@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)
	assert.Equal(t, a.ETag, byEmail.ETag)

	bySecret, err := s.GetAccountByField(ctx, repository.FieldSecret, a.Secret)
	require.NoError(t, err)
	assert.Equal(t, a.ID, bySecret.ID)

	_, err = s.GetAccountByField(ctx, repository.FieldRecoveryCode, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.GetAccountByField(ctx, repository.Field("name"), "Ada")
	assert.ErrorIs(t, err, repository.ErrInvalidField)
}

func TestUpdateAccount_ReplaceClearsProperties(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "ada@example.com")

	a.GenerateRecoveryCode(time.Now())
	require.NoError(t, s.UpdateAccount(ctx, a))
	got, err := s.GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RecoveryCode)
	require.NotNil(t, got.RecoveryCodeIssued)

	got.ClearRecoveryCode()
	got.SetVerified(true)
	require.NoError(t, s.UpdateAccount(ctx, got))

	again, err := s.GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, again.RecoveryCode)
	assert.Nil(t, again.RecoveryCodeIssued)
	assert.True(t, again.Verified)
}

func TestUpdateAccount_Stale(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "ada@example.com")
	stale := *a

	a.Name = "First"
	require.NoError(t, s.UpdateAccount(ctx, a))

	stale.Name = "Second"
	err := s.UpdateAccount(ctx, &stale)

	assert.ErrorIs(t, err, repository.ErrStale)
}

func TestDeleteAccount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "ada@example.com")

	require.NoError(t, s.DeleteAccount(ctx, a.ID, ""))

	assert.ErrorIs(t, s.DeleteAccount(ctx, a.ID, ""), repository.ErrNotFound)
}

func TestDeleteAccount_IfMatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "ada@example.com")
	listedETag := a.ETag

	a.SetVerified(true)
	require.NoError(t, s.UpdateAccount(ctx, a))

	assert.ErrorIs(t, s.DeleteAccount(ctx, a.ID, listedETag), repository.ErrStale)
	require.NoError(t, s.DeleteAccount(ctx, a.ID, a.ETag))
	_, err := s.GetAccountByID(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListUnverifiedBefore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.now = func() time.Time { return now.Add(-72 * time.Hour) }
	old := createAccount(t, s, "old@example.com")
	verified := createAccount(t, s, "verified@example.com")
	verified.SetVerified(true)
	require.NoError(t, s.UpdateAccount(ctx, verified))
	changed := createAccount(t, s, "changed@example.com")
	changed.SetVerified(true)
	changed.SetVerified(false)
	require.NoError(t, s.UpdateAccount(ctx, changed))
	s.now = time.Now
	createAccount(t, s, "new@example.com")

	accounts, err := s.ListUnverifiedBefore(ctx, now.Add(-24*time.Hour))

	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, old.ID, accounts[0].ID)
}

func TestPing(t *testing.T) {
	s, table := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Ping(ctx))

	table.failList = responseError(http.StatusForbidden)
	assert.Error(t, s.Ping(ctx))
}

func TestDecodeEntity_LicenseFields(t *testing.T) {
	a := &models.Account{ID: "id-1", Email: "ada@example.com", CreatedAt: time.Now()}
	a.AgreeLicense(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), models.LicenseAgreement{
		Name: "Ada", Organization: "Engines", Version: "1.0",
	})

	data, err := encodeEntity(a)
	require.NoError(t, err)
	got, err := decodeEntity(data, `W/"1"`)
	require.NoError(t, err)

	assert.True(t, got.LicenseAgreed())
	assert.True(t, got.LicenseAgreedDate.Equal(*a.LicenseAgreedDate))
	assert.Equal(t, "Engines", *got.LicenseAgreedOrg)
	assert.Nil(t, got.LicenseAgreedTitle)
	assert.Equal(t, `W/"1"`, got.ETag)
}

func azETag(s string) azcore.ETag {
	return azcore.ETag(s)
}
