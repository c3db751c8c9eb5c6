package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDeviceStore struct {
	rows map[string]DeviceRow
}

func newMemoryDeviceStore() *memoryDeviceStore {
	return &memoryDeviceStore{rows: map[string]DeviceRow{}}
}

func (s *memoryDeviceStore) Insert(ctx context.Context, row DeviceRow) (DeviceRow, error) {
	if _, exists := s.rows[row.UniqueID]; exists {
		return DeviceRow{}, insertError(&pgconn.PgError{Code: uniqueViolationCode})
	}
	s.rows[row.UniqueID] = row
	return row, nil
}

func (s *memoryDeviceStore) FindByTokenHash(ctx context.Context, tokenHash string) (DeviceRow, error) {
	for _, row := range s.rows {
		if row.TokenHash == tokenHash {
			return row, nil
		}
	}
	return DeviceRow{}, ErrTokenNotFound
}

func (s *memoryDeviceStore) Claim(ctx context.Context, tokenHash string) (DeviceRow, error) {
	for id, row := range s.rows {
		if row.TokenHash == tokenHash && !row.Claimed {
			row.Claimed = true
			s.rows[id] = row
			return row, nil
		}
	}
	return DeviceRow{}, ErrNotClaimable
}

func (s *memoryDeviceStore) Close(ctx context.Context) error {
	return nil
}

func Test_HashToken(t *testing.T) {
	assert.Equal(t, "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0", HashToken("abc"))
	assert.Equal(t, HashToken("token"), HashToken("token"))
	assert.NotEqual(t, HashToken("token"), HashToken("token2"))
}

func Test_GenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, tokenSize)
}

func Test_ClaimURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		url   string
	}{
		{base: "", token: "abc", url: "http://localhost:3000/claim?token=abc"},
		{base: "https://devices.example.com/", token: "a-b_c", url: "https://devices.example.com/claim?token=a-b_c"},
		{base: "https://devices.example.com/app", token: "a b", url: "https://devices.example.com/app/claim?token=a+b"},
	}

	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			assert.Equal(t, test.url, ClaimURL(test.base, test.token))
		})
	}
}

func Test_insertError(t *testing.T) {
	assert.ErrorIs(t, insertError(&pgconn.PgError{Code: "23505"}), ErrDeviceExists)

	other := &pgconn.PgError{Code: "42P01", Message: "relation \"devices\" does not exist"}
	err := insertError(other)
	assert.NotErrorIs(t, err, ErrDeviceExists)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
}

func Test_registerDevice(t *testing.T) {
	ctx := context.Background()
	store := newMemoryDeviceStore()

	row, token, err := registerDevice(ctx, store, "SPT-AABBCCDDEEFF", "kitchen")
	require.NoError(t, err)
	assert.Equal(t, "SPT-AABBCCDDEEFF", row.UniqueID)
	assert.Equal(t, HashToken(token), row.TokenHash)
	assert.False(t, row.Claimed)
	require.NotNil(t, row.Name)
	assert.Equal(t, "kitchen", *row.Name)
	assert.Equal(t, "SPT-AABBCCDDEEFF\tkitchen\tunclaimed", row.Short())

	found, err := store.FindByTokenHash(ctx, HashToken(token))
	require.NoError(t, err)
	assert.Equal(t, row, found)

	_, _, err = registerDevice(ctx, store, "SPT-AABBCCDDEEFF", "")
	assert.ErrorIs(t, err, ErrDeviceExists)

	row, _, err = registerDevice(ctx, store, "SPT-001122334455", "")
	require.NoError(t, err)
	assert.Nil(t, row.Name)
	assert.Equal(t, "SPT-001122334455\t(unnamed)\tunclaimed", row.Short())
}

func Test_OpenDeviceStoreWithoutURL(t *testing.T) {
	_, err := OpenDeviceStore(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func Test_claimDevice(t *testing.T) {
	ctx := context.Background()
	store := newMemoryDeviceStore()

	registered, token, err := registerDevice(ctx, store, "SPT-AABBCCDDEEFF", "kitchen")
	require.NoError(t, err)
	_, other, err := registerDevice(ctx, store, "SPT-001122334455", "")
	require.NoError(t, err)

	row, err := claimDevice(ctx, store, token)
	require.NoError(t, err)
	assert.Equal(t, registered.UniqueID, row.UniqueID)
	assert.True(t, row.Claimed)
	assert.Equal(t, "SPT-AABBCCDDEEFF\tkitchen\tclaimed", row.Short())

	found, err := store.FindByTokenHash(ctx, HashToken(token))
	require.NoError(t, err)
	assert.True(t, found.Claimed)

	_, err = claimDevice(ctx, store, token)
	assert.ErrorIs(t, err, ErrNotClaimable)

	_, err = claimDevice(ctx, store, "not-a-token")
	assert.ErrorIs(t, err, ErrNotClaimable)

	_, err = claimDevice(ctx, store, "")
	assert.ErrorIs(t, err, ErrNotClaimable)

	untouched, err := store.FindByTokenHash(ctx, HashToken(other))
	require.NoError(t, err)
	assert.False(t, untouched.Claimed)
}
