package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/plexist/internal/models"
)

// CredentialRepository persists token material per service so a restart
// resumes with the last refreshed tokens instead of forcing a new login.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get returns the stored credential for a service, or nil when none exists.
func (r *CredentialRepository) Get(service string) (*models.Credential, error) {
	query := `
		SELECT access_token, refresh_token, expiry FROM credentials
		WHERE service = ?
	`

	cred := models.Credential{Service: service}
	var expiry sql.NullTime
	err := r.db.QueryRow(query, service).Scan(&cred.AccessToken, &cred.RefreshToken, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential for %s: %w", service, err)
	}
	if expiry.Valid {
		cred.Expiry = expiry.Time
	}
	return &cred, nil
}

// Put upserts a service's credential.
func (r *CredentialRepository) Put(cred models.Credential) error {
	if cred.Service == "" {
		return fmt.Errorf("credential missing service name")
	}

	var expiry any
	if !cred.Expiry.IsZero() {
		expiry = cred.Expiry
	}

	query := `
		INSERT INTO credentials (service, access_token, refresh_token, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (service)
		DO UPDATE SET access_token = excluded.access_token,
		              refresh_token = excluded.refresh_token,
		              expiry = excluded.expiry,
		              updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, cred.Service, cred.AccessToken, cred.RefreshToken, expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert credential for %s: %w", cred.Service, err)
	}
	return nil
}

// Delete removes a service's credential, used by logout.
func (r *CredentialRepository) Delete(service string) error {
	_, err := r.db.Exec(`DELETE FROM credentials WHERE service = ?`, service)
	if err != nil {
		return fmt.Errorf("failed to delete credential for %s: %w", service, err)
	}
	return nil
}
