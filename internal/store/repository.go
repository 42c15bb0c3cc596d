package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

//go:embed schema.sql
var schemaSQL string

const (
	prefLastUsedAccount  = "last_used_account"
	prefOnboardingPrefix = "onboarding_done:"
)

// Repository provides database operations for preferences, agent
// credentials, and pending history entries.
type Repository struct {
	db *sqlx.DB
}

var _ wallet.PreferenceStore = (*Repository)(nil)

// NewRepository connects and bootstraps the schema.
func NewRepository(connectionString string) (*Repository, error) {
	db, err := sqlx.Connect("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	repo := &Repository{db: db}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// === Agent Credential Operations ===

type agentCredentialRow struct {
	Master     string    `db:"master"`
	DeviceID   string    `db:"device_id"`
	Address    string    `db:"address"`
	KeyHex     string    `db:"key_hex"`
	Name       string    `db:"name"`
	ValidUntil time.Time `db:"valid_until"`
}

func (r *Repository) AgentCredential(ctx context.Context, master common.Address, deviceID string) (*wallet.AgentCredential, error) {
	var row agentCredentialRow
	query := `
		SELECT master, device_id, address, key_hex, name, valid_until
		FROM agent_credentials WHERE master = $1 AND device_id = $2
	`

	err := r.db.GetContext(ctx, &row, query, strings.ToLower(master.Hex()), deviceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent credential: %w", err)
	}

	return &wallet.AgentCredential{
		Master:     common.HexToAddress(row.Master),
		DeviceID:   row.DeviceID,
		Address:    common.HexToAddress(row.Address),
		KeyHex:     row.KeyHex,
		Name:       row.Name,
		ValidUntil: row.ValidUntil,
	}, nil
}

func (r *Repository) SaveAgentCredential(ctx context.Context, cred wallet.AgentCredential) error {
	query := `
		INSERT INTO agent_credentials (master, device_id, address, key_hex, name, valid_until)
		VALUES (:master, :device_id, :address, :key_hex, :name, :valid_until)
		ON CONFLICT (master, device_id) DO UPDATE SET
			address = EXCLUDED.address,
			key_hex = EXCLUDED.key_hex,
			name = EXCLUDED.name,
			valid_until = EXCLUDED.valid_until,
			updated_at = NOW()
	`

	_, err := r.db.NamedExecContext(ctx, query, agentCredentialRow{
		Master:     strings.ToLower(cred.Master.Hex()),
		DeviceID:   cred.DeviceID,
		Address:    strings.ToLower(cred.Address.Hex()),
		KeyHex:     cred.KeyHex,
		Name:       cred.Name,
		ValidUntil: cred.ValidUntil,
	})
	if err != nil {
		return fmt.Errorf("failed to save agent credential: %w", err)
	}
	return nil
}

func (r *Repository) DeleteAgentCredential(ctx context.Context, master common.Address, deviceID string) error {
	query := `DELETE FROM agent_credentials WHERE master = $1 AND device_id = $2`

	if _, err := r.db.ExecContext(ctx, query, strings.ToLower(master.Hex()), deviceID); err != nil {
		return fmt.Errorf("failed to delete agent credential: %w", err)
	}
	return nil
}

// === Preference Operations ===

func (r *Repository) getPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM preferences WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Repository) setPreference(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO preferences (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

func (r *Repository) LastUsedAccount(ctx context.Context) (*common.Address, error) {
	value, ok, err := r.getPreference(ctx, prefLastUsedAccount)
	if err != nil || !ok {
		return nil, err
	}
	addr := common.HexToAddress(value)
	return &addr, nil
}

func (r *Repository) SetLastUsedAccount(ctx context.Context, addr common.Address) error {
	return r.setPreference(ctx, prefLastUsedAccount, strings.ToLower(addr.Hex()))
}

func (r *Repository) OnboardingDone(ctx context.Context, addr common.Address) (bool, error) {
	_, ok, err := r.getPreference(ctx, prefOnboardingPrefix+strings.ToLower(addr.Hex()))
	return ok, err
}

func (r *Repository) SetOnboardingDone(ctx context.Context, addr common.Address) error {
	return r.setPreference(ctx, prefOnboardingPrefix+strings.ToLower(addr.Hex()), "true")
}

// === Pending History Operations ===

type pendingHistoryRow struct {
	ID        uuid.UUID       `db:"id"`
	Master    string          `db:"master"`
	TxHash    string          `db:"tx_hash"`
	EntryType string          `db:"entry_type"`
	Status    string          `db:"status"`
	UsdValue  decimal.Decimal `db:"usd_value"`
	CreatedAt time.Time       `db:"created_at"`
}

var _ history.PendingStore = (*Repository)(nil)

func (r *Repository) SavePending(ctx context.Context, master common.Address, e history.Entry) error {
	query := `
		INSERT INTO pending_history (id, master, tx_hash, entry_type, status, usd_value, created_at)
		VALUES (:id, :master, :tx_hash, :entry_type, :status, :usd_value, :created_at)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.NamedExecContext(ctx, query, pendingHistoryRow{
		ID:        e.ID,
		Master:    strings.ToLower(master.Hex()),
		TxHash:    strings.ToLower(e.Hash.Hex()),
		EntryType: string(e.Type),
		Status:    string(e.Status),
		UsdValue:  e.UsdValue,
		CreatedAt: e.Time,
	})
	if err != nil {
		return fmt.Errorf("failed to save pending entry: %w", err)
	}
	return nil
}

func (r *Repository) ListPending(ctx context.Context, master common.Address) ([]history.Entry, error) {
	var rows []pendingHistoryRow
	query := `
		SELECT id, master, tx_hash, entry_type, status, usd_value, created_at
		FROM pending_history
		WHERE master = $1
		ORDER BY created_at DESC
	`

	err := r.db.SelectContext(ctx, &rows, query, strings.ToLower(master.Hex()))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	entries := make([]history.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, history.Entry{
			ID:       row.ID,
			Hash:     common.HexToHash(row.TxHash),
			Type:     history.EntryType(row.EntryType),
			Status:   history.Status(row.Status),
			UsdValue: row.UsdValue,
			Time:     row.CreatedAt,
		})
	}
	return entries, nil
}

func (r *Repository) DeletePending(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_history WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pending entry: %w", err)
	}
	return nil
}
