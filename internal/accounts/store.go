package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no active account matches.
var ErrNotFound = errors.New("accounts: not found")

// Account is one connected provider account. Token fields are
// plaintext in memory; the store encrypts them on write and decrypts
// on read.
type Account struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	Scope             string
	ExpiresAt         time.Time
	Status            string
	Email             string
	DisplayName       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Expired reports whether the access token is past (or within skew of)
// its expiry.
func (a Account) Expired(skew time.Duration) bool {
	if a.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(a.ExpiresAt)
}

// Store persists connected accounts in SQLite.
type Store struct {
	db     *sql.DB
	cipher *TokenCipher
}

func NewStore(db *DB, cipher *TokenCipher) *Store {
	return &Store{db: db.SQLDB(), cipher: cipher}
}

// Upsert creates or replaces the active account for (user, provider,
// provider account). Refresh tokens survive an upsert that omits one,
// since Google only returns the refresh token on first consent.
func (s *Store) Upsert(a Account) (Account, error) {
	if a.UserID == "" || a.Provider == "" || a.ProviderAccountID == "" {
		return Account{}, fmt.Errorf("accounts: user_id, provider, and provider_account_id are required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	now := time.Now().UTC()
	a.UpdatedAt = now

	existing, err := s.GetActive(a.UserID, a.Provider)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	if err == nil {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		if a.RefreshToken == "" {
			a.RefreshToken = existing.RefreshToken
		}
	} else {
		a.CreatedAt = now
	}

	access, err := s.cipher.Encrypt(a.AccessToken)
	if err != nil {
		return Account{}, err
	}
	refresh, err := s.cipher.Encrypt(a.RefreshToken)
	if err != nil {
		return Account{}, err
	}

	_, err = s.db.Exec(`
		INSERT INTO connected_accounts
			(id, user_id, provider, provider_account_id, access_token, refresh_token,
			 token_type, scope, expires_at, status, email, display_name,
			 created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (user_id, provider, provider_account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			status = excluded.status,
			email = excluded.email,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at,
			deleted_at = NULL`,
		a.ID, a.UserID, a.Provider, a.ProviderAccountID, access, refresh,
		a.TokenType, a.Scope, unixOrZero(a.ExpiresAt), a.Status, a.Email, a.DisplayName,
		a.CreatedAt.Unix(), a.UpdatedAt.Unix())
	if err != nil {
		return Account{}, fmt.Errorf("accounts: upsert: %w", err)
	}
	return a, nil
}

// GetActive returns the user's active, non-deleted account for the
// provider, with token fields decrypted.
func (s *Store) GetActive(userID, provider string) (Account, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, provider, provider_account_id, access_token, refresh_token,
		       token_type, scope, expires_at, status, email, display_name,
		       created_at, updated_at
		FROM connected_accounts
		WHERE user_id = ? AND provider = ? AND status = 'active' AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT 1`, userID, provider)
	return s.scanAccount(row)
}

// UpdateTokens writes a refreshed token pair back to the account.
func (s *Store) UpdateTokens(accountID, accessToken, refreshToken string, expiresAt time.Time) error {
	access, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	if refreshToken != "" {
		refresh, err := s.cipher.Encrypt(refreshToken)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`
			UPDATE connected_accounts
			SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
			WHERE id = ?`,
			access, refresh, unixOrZero(expiresAt), time.Now().UTC().Unix(), accountID)
		return err
	}
	_, err = s.db.Exec(`
		UPDATE connected_accounts
		SET access_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		access, unixOrZero(expiresAt), time.Now().UTC().Unix(), accountID)
	return err
}

// Disconnect soft-deletes the user's account for the provider.
func (s *Store) Disconnect(userID, provider string) error {
	_, err := s.db.Exec(`
		UPDATE connected_accounts
		SET status = 'disconnected', deleted_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ? AND deleted_at IS NULL`,
		time.Now().UTC().Unix(), time.Now().UTC().Unix(), userID, provider)
	if err != nil {
		return fmt.Errorf("accounts: disconnect: %w", err)
	}
	return nil
}

// ListExpiring returns active accounts whose access token expires
// within the window and that hold a refresh token.
func (s *Store) ListExpiring(provider string, within time.Duration) ([]Account, error) {
	cutoff := time.Now().Add(within).Unix()
	rows, err := s.db.Query(`
		SELECT id, user_id, provider, provider_account_id, access_token, refresh_token,
		       token_type, scope, expires_at, status, email, display_name,
		       created_at, updated_at
		FROM connected_accounts
		WHERE provider = ? AND status = 'active' AND deleted_at IS NULL
		  AND expires_at > 0 AND expires_at <= ?
		  AND refresh_token IS NOT NULL AND refresh_token != ''`,
		provider, cutoff)
	if err != nil {
		return nil, fmt.Errorf("accounts: list expiring: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanAccount(row rowScanner) (Account, error) {
	var a Account
	var access, refresh, tokenType, scope, email, displayName sql.NullString
	var expiresAt, createdAt, updatedAt int64
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &access, &refresh,
		&tokenType, &scope, &expiresAt, &a.Status, &email, &displayName,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("accounts: scan: %w", err)
	}

	if a.AccessToken, err = s.cipher.Decrypt(access.String); err != nil {
		return Account{}, err
	}
	if a.RefreshToken, err = s.cipher.Decrypt(refresh.String); err != nil {
		return Account{}, err
	}
	a.TokenType = tokenType.String
	a.Scope = scope.String
	a.Email = email.String
	a.DisplayName = displayName.String
	if expiresAt > 0 {
		a.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return a, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}
