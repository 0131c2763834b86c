package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a PostgreSQL schema matching
// the table layout in §6 of the spec (opportunity_cache, notification_tasks,
// agent_runs, agent_history, group_config, system_config).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pooled connection and verifies reachability.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// EnsureSchema creates the tables this store needs if they do not already
// exist. It deliberately never creates the deprecated tables named in §6.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS opportunity_cache (
			order_num TEXT PRIMARY KEY,
			org_name TEXT NOT NULL,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			supervisor_name TEXT NOT NULL,
			order_status TEXT NOT NULL,
			create_time TIMESTAMP NOT NULL,
			last_updated TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_tasks (
			id TEXT PRIMARY KEY,
			order_num TEXT NOT NULL,
			org_name TEXT NOT NULL,
			notification_type TEXT NOT NULL,
			due_time TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMP,
			created_run_id TEXT NOT NULL DEFAULT '',
			sent_run_id TEXT NOT NULL DEFAULT '',
			retry_count INT NOT NULL DEFAULT 0,
			max_retry_count INT NOT NULL DEFAULT 5,
			cooldown_hours DOUBLE PRECISION NOT NULL DEFAULT 2.0,
			last_sent_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS notification_tasks_pending_key
			ON notification_tasks (order_num, notification_type) WHERE status = 'Pending'`,
		`CREATE TABLE IF NOT EXISTS agent_runs (
			id TEXT PRIMARY KEY,
			trigger_time TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			context JSONB,
			opportunities_processed INT NOT NULL DEFAULT 0,
			notifications_sent INT NOT NULL DEFAULT 0,
			errors JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS agent_history (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES agent_runs(id),
			step_name TEXT NOT NULL,
			start TIMESTAMP NOT NULL,
			"end" TIMESTAMP NOT NULL,
			outcome TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS group_config (
			group_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			webhook_url TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			notification_cooldown_minutes INT NOT NULL DEFAULT 30,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- Opportunity cache ---

func (s *PostgresStore) ReplaceOpportunityCache(ctx context.Context, opps []Opportunity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM opportunity_cache`); err != nil {
		return err
	}
	for _, o := range opps {
		_, err := tx.Exec(ctx, `
			INSERT INTO opportunity_cache (order_num, org_name, name, address, supervisor_name, order_status, create_time, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_num) DO UPDATE SET
				org_name = EXCLUDED.org_name,
				name = EXCLUDED.name,
				address = EXCLUDED.address,
				supervisor_name = EXCLUDED.supervisor_name,
				order_status = EXCLUDED.order_status,
				create_time = EXCLUDED.create_time,
				last_updated = EXCLUDED.last_updated
		`, o.OrderNum, o.OrgName, o.Customer, o.Address, o.Supervisor, string(o.Status), o.CreateTime, o.LastUpdated)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListCachedOpportunities(ctx context.Context) ([]Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_num, org_name, name, address, supervisor_name, order_status, create_time, last_updated
		FROM opportunity_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var o Opportunity
		var status string
		if err := rows.Scan(&o.OrderNum, &o.OrgName, &o.Customer, &o.Address, &o.Supervisor, &status, &o.CreateTime, &o.LastUpdated); err != nil {
			return nil, err
		}
		o.Status = OpportunityStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClearOpportunityCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunity_cache`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CacheLastUpdated(ctx context.Context) (time.Time, bool) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_updated) FROM opportunity_cache`).Scan(&t)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// --- Notification tasks ---

func (s *PostgresStore) FindTaskByKey(ctx context.Context, key TaskKey) (*NotificationTask, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, order_num, org_name, notification_type, status, due_time, message, sent_at,
			created_run_id, sent_run_id, retry_count, max_retry_count, cooldown_hours, last_sent_at,
			created_at, updated_at
		FROM notification_tasks
		WHERE order_num = $1 AND notification_type = $2
		ORDER BY (status = 'Pending') DESC, updated_at DESC
		LIMIT 1`, key.OrderNum, string(key.Type))
	return scanTask(row)
}

func scanTask(row pgx.Row) (*NotificationTask, error) {
	var t NotificationTask
	var ntype, status string
	if err := row.Scan(&t.ID, &t.OrderNum, &t.OrgName, &ntype, &status, &t.DueTime, &t.Message, &t.SentAt,
		&t.CreatedRunID, &t.SentRunID, &t.RetryCount, &t.MaxRetryCount, &t.CooldownHours, &t.LastSentAt,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.NotificationType = NotificationType(ntype)
	t.Status = TaskStatus(status)
	return &t, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, task *NotificationTask) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_tasks (id, order_num, org_name, notification_type, due_time, status,
			message, sent_at, created_run_id, sent_run_id, retry_count, max_retry_count, cooldown_hours,
			last_sent_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		task.ID, task.OrderNum, task.OrgName, string(task.NotificationType), task.DueTime, string(task.Status),
		task.Message, task.SentAt, task.CreatedRunID, task.SentRunID, task.RetryCount, task.MaxRetryCount,
		task.CooldownHours, task.LastSentAt, task.CreatedAt, task.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *NotificationTask) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_tasks SET status=$2, message=$3, sent_at=$4, sent_run_id=$5,
			retry_count=$6, last_sent_at=$7, updated_at=$8
		WHERE id=$1`,
		task.ID, string(task.Status), task.Message, task.SentAt, task.SentRunID,
		task.RetryCount, task.LastSentAt, task.UpdatedAt)
	return err
}

func (s *PostgresStore) ListPendingTasksOrdered(ctx context.Context) ([]*NotificationTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_num, org_name, notification_type, status, due_time, message, sent_at,
			created_run_id, sent_run_id, retry_count, max_retry_count, cooldown_hours, last_sent_at,
			created_at, updated_at
		FROM notification_tasks WHERE status='Pending' ORDER BY due_time ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*NotificationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteOldTasks(ctx context.Context, cutoffRFC3339 string) (int, error) {
	cutoff, err := time.Parse(time.RFC3339, cutoffRFC3339)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_tasks WHERE status IN ('Sent','Failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- Agent runs / step traces ---

func (s *PostgresStore) InsertRun(ctx context.Context, run *AgentRun) error {
	ctxJSON, _ := json.Marshal(run.Context)
	errsJSON, _ := json.Marshal(run.Errors)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_runs (id, trigger_time, status, context, opportunities_processed, notifications_sent, errors, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID, run.TriggerTime, string(run.Status), ctxJSON, run.OpportunitiesProcessed,
		run.NotificationsSent, errsJSON, run.CreatedAt, run.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *AgentRun) error {
	errsJSON, _ := json.Marshal(run.Errors)
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_runs SET status=$2, opportunities_processed=$3, notifications_sent=$4, errors=$5, updated_at=$6
		WHERE id=$1`,
		run.ID, string(run.Status), run.OpportunitiesProcessed, run.NotificationsSent, errsJSON, run.UpdatedAt)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, trigger_time, status, context, opportunities_processed, notifications_sent, errors, created_at, updated_at
		FROM agent_runs WHERE id=$1`, id)
	return scanRun(row)
}

func scanRun(row pgx.Row) (*AgentRun, error) {
	var r AgentRun
	var status string
	var ctxJSON, errsJSON []byte
	if err := row.Scan(&r.ID, &r.TriggerTime, &status, &ctxJSON, &r.OpportunitiesProcessed,
		&r.NotificationsSent, &errsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Status = RunStatus(status)
	_ = json.Unmarshal(ctxJSON, &r.Context)
	_ = json.Unmarshal(errsJSON, &r.Errors)
	return &r, nil
}

func (s *PostgresStore) ListRecentRuns(ctx context.Context, limit int) ([]*AgentRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trigger_time, status, context, opportunities_processed, notifications_sent, errors, created_at, updated_at
		FROM agent_runs ORDER BY trigger_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertStep(ctx context.Context, step *StepTrace) error {
	payload, _ := json.Marshal(step.Payload)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_history (id, run_id, step_name, start, "end", outcome, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		step.ID, step.RunID, step.StepName, step.Start, step.End, step.Outcome, payload, step.CreatedAt)
	return err
}

func (s *PostgresStore) ListStepsByRun(ctx context.Context, runID string) ([]*StepTrace, error) {
	return s.listSteps(ctx, `WHERE run_id=$1 ORDER BY start ASC`, runID)
}

func (s *PostgresStore) ListStepsByName(ctx context.Context, stepName string) ([]*StepTrace, error) {
	return s.listSteps(ctx, `WHERE step_name=$1 ORDER BY start ASC`, stepName)
}

func (s *PostgresStore) listSteps(ctx context.Context, where string, arg any) ([]*StepTrace, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, step_name, start, "end", outcome, payload, created_at
		FROM agent_history `+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StepTrace
	for rows.Next() {
		var st StepTrace
		var payload []byte
		if err := rows.Scan(&st.ID, &st.RunID, &st.StepName, &st.Start, &st.End, &st.Outcome, &payload, &st.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(payload, &st.Payload)
		out = append(out, &st)
	}
	return out, rows.Err()
}

// --- Group config ---

func (s *PostgresStore) GetGroupConfig(ctx context.Context, groupID string) (*GroupConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT group_id, name, webhook_url, enabled, notification_cooldown_minutes, created_at, updated_at
		FROM group_config WHERE group_id=$1`, groupID)
	return scanGroup(row)
}

func (s *PostgresStore) GetGroupConfigByOrg(ctx context.Context, orgName string) (*GroupConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT group_id, name, webhook_url, enabled, notification_cooldown_minutes, created_at, updated_at
		FROM group_config WHERE name=$1`, orgName)
	return scanGroup(row)
}

func scanGroup(row pgx.Row) (*GroupConfig, error) {
	var g GroupConfig
	if err := row.Scan(&g.GroupID, &g.Name, &g.WebhookURL, &g.Enabled, &g.NotificationCooldownMinutes, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) UpsertGroupConfig(ctx context.Context, cfg *GroupConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO group_config (group_id, name, webhook_url, enabled, notification_cooldown_minutes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		ON CONFLICT (group_id) DO UPDATE SET
			name = EXCLUDED.name,
			webhook_url = EXCLUDED.webhook_url,
			enabled = EXCLUDED.enabled,
			notification_cooldown_minutes = EXCLUDED.notification_cooldown_minutes,
			updated_at = NOW()`,
		cfg.GroupID, cfg.Name, cfg.WebhookURL, cfg.Enabled, cfg.NotificationCooldownMinutes)
	return err
}

// --- System config ---

func (s *PostgresStore) GetSystemConfig(ctx context.Context, key string) (*SystemConfigEntry, error) {
	var e SystemConfigEntry
	err := s.pool.QueryRow(ctx, `SELECT key, value, description, created_at FROM system_config WHERE key=$1`, key).
		Scan(&e.Key, &e.Value, &e.Description, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) SetSystemConfig(ctx context.Context, entry *SystemConfigEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_config (key, value, description, created_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description`,
		entry.Key, entry.Value, entry.Description)
	return err
}
