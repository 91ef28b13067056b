package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicelane/voicelane"
)

// PostgresStore persists agents in a voice_agents table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initAgentSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initAgentSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_agents (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL,
			voice TEXT NOT NULL DEFAULT 'alloy',
			vad_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			stop_secs DOUBLE PRECISION NOT NULL DEFAULT 0.8,
			phone_number TEXT NOT NULL DEFAULT '',
			webhooks JSONB NOT NULL DEFAULT '[]',
			active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_agents_active ON voice_agents (active);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init agent schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const agentColumns = `id, name, description, system_prompt, voice, vad_threshold, stop_secs,
	phone_number, webhooks, active, created_at, updated_at`

func (s *PostgresStore) List(ctx context.Context) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM voice_agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := make([]Agent, 0, 8)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM voice_agents WHERE id=$1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a Agent) (Agent, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	webhooks, err := marshalWebhooks(a.Webhooks)
	if err != nil {
		return Agent{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO voice_agents (`+agentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Name, a.Description, a.SystemPrompt, a.Voice, a.VADThreshold,
		a.StopSecs, a.PhoneNumber, webhooks, a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a Agent) (Agent, error) {
	a.UpdatedAt = time.Now().UTC()
	webhooks, err := marshalWebhooks(a.Webhooks)
	if err != nil {
		return Agent{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE voice_agents SET
			name=$2, description=$3, system_prompt=$4, voice=$5, vad_threshold=$6,
			stop_secs=$7, phone_number=$8, webhooks=$9, active=$10, updated_at=$11
		 WHERE id=$1`,
		a.ID, a.Name, a.Description, a.SystemPrompt, a.Voice, a.VADThreshold,
		a.StopSecs, a.PhoneNumber, webhooks, a.Active, a.UpdatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Agent{}, ErrNotFound
	}
	return s.Get(ctx, a.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM voice_agents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (Agent, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voice_agents SET active=$2, updated_at=$3 WHERE id=$1`,
		id, active, time.Now().UTC())
	if err != nil {
		return Agent{}, fmt.Errorf("set agent active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Agent{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalWebhooks(webhooks []voicelane.WebhookConfig) ([]byte, error) {
	if webhooks == nil {
		webhooks = []voicelane.WebhookConfig{}
	}
	b, err := json.Marshal(webhooks)
	if err != nil {
		return nil, fmt.Errorf("marshal webhooks: %w", err)
	}
	return b, nil
}

func scanAgent(row pgx.Row) (Agent, error) {
	var (
		a        Agent
		webhooks []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&a.SystemPrompt,
		&a.Voice,
		&a.VADThreshold,
		&a.StopSecs,
		&a.PhoneNumber,
		&webhooks,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Agent{}, err
	}
	if len(webhooks) > 0 {
		if err := json.Unmarshal(webhooks, &a.Webhooks); err != nil {
			return Agent{}, fmt.Errorf("decode webhooks: %w", err)
		}
	}
	return a, nil
}
