// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	DefaultClaimBaseURL = "http://localhost:3000"

	tokenSize = 32

	// SQLSTATE reported by Postgres for unique constraint violations.
	uniqueViolationCode = "23505"
)

var (
	ErrDeviceExists  = errors.New("device with that unique_id already exists")
	ErrTokenNotFound = errors.New("no device found with that token")
	ErrNotClaimable  = errors.New("no unclaimed device found with that token")
	ErrNoDatabase    = errors.New("no device registry configured; use --database-url, $SPTID_DATABASE_URL or 'sptid config set database.url <url>'")
)

// DeviceRow is a row of the devices table.
type DeviceRow struct {
	UniqueID  string  `mapstructure:"unique_id" yaml:"unique_id" json:"unique_id"`
	TokenHash string  `mapstructure:"token_hash" yaml:"token_hash" json:"token_hash"`
	Claimed   bool    `mapstructure:"claimed" yaml:"claimed" json:"claimed"`
	Name      *string `mapstructure:"name" yaml:"name" json:"name"`
}

func (d DeviceRow) Short() string {
	name := "(unnamed)"
	if d.Name != nil && *d.Name != "" {
		name = *d.Name
	}
	state := "unclaimed"
	if d.Claimed {
		state = "claimed"
	}
	return fmt.Sprintf("%s\t%s\t%s", d.UniqueID, name, state)
}

type DeviceRows []DeviceRow

func (d DeviceRows) Elements() []Short {
	var res []Short
	for _, row := range d {
		res = append(res, row)
	}
	return res
}

// DeviceStore persists registered devices.
type DeviceStore interface {
	Insert(ctx context.Context, row DeviceRow) (DeviceRow, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (DeviceRow, error)
	// Claim marks the unclaimed device with the given token hash as claimed.
	// It returns ErrNotClaimable if there is no such device.
	Claim(ctx context.Context, tokenHash string) (DeviceRow, error)
	Close(ctx context.Context) error
}

type pgDeviceStore struct {
	conn *pgx.Conn
}

// OpenDeviceStore connects to the Postgres database at databaseURL.
func OpenDeviceStore(ctx context.Context, databaseURL string) (DeviceStore, error) {
	if databaseURL == "" {
		return nil, ErrNoDatabase
	}
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to the device registry: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to ping the device registry: %w", err)
	}
	return &pgDeviceStore{conn: conn}, nil
}

func (s *pgDeviceStore) Insert(ctx context.Context, row DeviceRow) (DeviceRow, error) {
	var res DeviceRow
	err := s.conn.QueryRow(ctx, `
		INSERT INTO devices (unique_id, token_hash, claimed, name)
		VALUES ($1, $2, $3, $4)
		RETURNING unique_id, token_hash, claimed, name`,
		row.UniqueID, row.TokenHash, row.Claimed, row.Name,
	).Scan(&res.UniqueID, &res.TokenHash, &res.Claimed, &res.Name)
	if err != nil {
		return DeviceRow{}, insertError(err)
	}
	return res, nil
}

func insertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return ErrDeviceExists
	}
	return fmt.Errorf("failed to insert device: %w", err)
}

func (s *pgDeviceStore) FindByTokenHash(ctx context.Context, tokenHash string) (DeviceRow, error) {
	var res DeviceRow
	err := s.conn.QueryRow(ctx, `
		SELECT unique_id, token_hash, claimed, name
		FROM devices
		WHERE token_hash = $1
		LIMIT 1`,
		tokenHash,
	).Scan(&res.UniqueID, &res.TokenHash, &res.Claimed, &res.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceRow{}, ErrTokenNotFound
	}
	if err != nil {
		return DeviceRow{}, fmt.Errorf("failed to look up token: %w", err)
	}
	return res, nil
}

func (s *pgDeviceStore) Claim(ctx context.Context, tokenHash string) (DeviceRow, error) {
	var res DeviceRow
	err := s.conn.QueryRow(ctx, `
		UPDATE devices
		SET claimed = true
		WHERE token_hash = $1 AND claimed = false
		RETURNING unique_id, token_hash, claimed, name`,
		tokenHash,
	).Scan(&res.UniqueID, &res.TokenHash, &res.Claimed, &res.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceRow{}, ErrNotClaimable
	}
	if err != nil {
		return DeviceRow{}, fmt.Errorf("failed to claim device: %w", err)
	}
	return res, nil
}

func (s *pgDeviceStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// GenerateToken returns a random URL-safe claim token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the form of token that is stored in the registry.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func ClaimURL(baseURL string, token string) string {
	if baseURL == "" {
		baseURL = DefaultClaimBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/claim?token=" + url.QueryEscape(token)
}

// registerDevice stores a new unclaimed device and returns the row together
// with the plain token. Only the hash of the token is stored.
func registerDevice(ctx context.Context, store DeviceStore, uniqueID string, name string) (DeviceRow, string, error) {
	token, err := GenerateToken()
	if err != nil {
		return DeviceRow{}, "", err
	}

	row := DeviceRow{
		UniqueID:  uniqueID,
		TokenHash: HashToken(token),
	}
	if name != "" {
		row.Name = &name
	}

	res, err := store.Insert(ctx, row)
	if err != nil {
		return DeviceRow{}, "", err
	}
	return res, token, nil
}

// claimDevice claims the device the plain token was issued for.
func claimDevice(ctx context.Context, store DeviceStore, token string) (DeviceRow, error) {
	if token == "" {
		return DeviceRow{}, ErrNotClaimable
	}
	return store.Claim(ctx, HashToken(token))
}
