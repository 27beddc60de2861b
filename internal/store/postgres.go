package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"collabhub-go/internal/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	// Create tables
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	// Apply migrations for existing tables
	migrations := []string{
		`ALTER TABLE modules ADD COLUMN IF NOT EXISTS version VARCHAR(50) NOT NULL DEFAULT '1.0.0';`,
		`ALTER TABLE resources ADD COLUMN IF NOT EXISTS sensitivity VARCHAR(50) NOT NULL DEFAULT '';`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, username, password, role string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, username, password_hash, role, created_at`,
		username, passwordHash, role,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, errors.New("user not found")
	}
	return user, err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, errors.New("user not found")
	}
	return user, err
}

func (s *PostgresStore) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			continue
		}
		users = append(users, user)
	}

	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int, username, role string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1, role = $2 WHERE id = $3`,
		username, role, id,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("user not found")
	}

	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (user_id, endpoint)
		 DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = NOW()`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, userID int, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	return err
}

func (s *PostgresStore) PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, updated_at, created_at
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.UpdatedAt, &sub.CreatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// Module methods

func (s *PostgresStore) CreateModule(ctx context.Context, m models.Module) (models.Module, error) {
	if m.EventSecret == "" {
		secret, err := models.GenerateSecret()
		if err != nil {
			return models.Module{}, err
		}
		m.EventSecret = secret
	}

	permissions, err := json.Marshal(m.Permissions)
	if err != nil {
		return models.Module{}, err
	}
	settings, err := json.Marshal(m.Settings)
	if err != nil {
		return models.Module{}, err
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO modules (name, version, entry_url, permissions, settings, event_secret, enabled, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING id, created_at`,
		m.Name, m.Version, m.EntryURL, permissions, settings, m.EventSecret, m.Enabled, m.CreatedBy,
	).Scan(&m.ID, &m.CreatedAt)

	return m, err
}

func (s *PostgresStore) scanModule(row *sql.Row) (models.Module, error) {
	var m models.Module
	var permissions, settings []byte
	err := row.Scan(&m.ID, &m.Name, &m.Version, &m.EntryURL, &permissions, &settings, &m.EventSecret, &m.Enabled, &m.CreatedBy, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Module{}, errors.New("module not found")
	}
	if err != nil {
		return models.Module{}, err
	}
	if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
		return models.Module{}, fmt.Errorf("bad permissions for module %d: %w", m.ID, err)
	}
	if err := json.Unmarshal(settings, &m.Settings); err != nil {
		return models.Module{}, fmt.Errorf("bad settings for module %d: %w", m.ID, err)
	}
	return m, nil
}

func (s *PostgresStore) GetModule(ctx context.Context, id int) (models.Module, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, entry_url, permissions, settings, event_secret, enabled, created_by, created_at
		 FROM modules WHERE id = $1`,
		id,
	)
	return s.scanModule(row)
}

func (s *PostgresStore) GetModules(ctx context.Context) ([]models.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, entry_url, permissions, settings, event_secret, enabled, created_by, created_at
		 FROM modules ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		var m models.Module
		var permissions, settings []byte
		if err := rows.Scan(&m.ID, &m.Name, &m.Version, &m.EntryURL, &permissions, &settings, &m.EventSecret, &m.Enabled, &m.CreatedBy, &m.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
			continue
		}
		if err := json.Unmarshal(settings, &m.Settings); err != nil {
			continue
		}
		modules = append(modules, m)
	}

	return modules, nil
}

func (s *PostgresStore) UpdateModuleSettings(ctx context.Context, id int, settings map[string]any) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE modules SET settings = $1 WHERE id = $2`,
		data, id,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("module not found")
	}
	return nil
}

func (s *PostgresStore) DeleteModule(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	return err
}

// Policy methods

func (s *PostgresStore) CreatePolicy(ctx context.Context, p models.Policy) (models.Policy, error) {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return models.Policy{}, err
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO policies (name, kind, priority, active, rules, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		p.Name, p.Kind, p.Priority, p.Active, rules, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)

	return p, err
}

func (s *PostgresStore) GetPolicy(ctx context.Context, id int) (models.Policy, error) {
	var p models.Policy
	var rules []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, priority, active, rules, created_by, created_at FROM policies WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Kind, &p.Priority, &p.Active, &rules, &p.CreatedBy, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return models.Policy{}, errors.New("policy not found")
	}
	if err != nil {
		return models.Policy{}, err
	}
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return models.Policy{}, fmt.Errorf("bad rules for policy %d: %w", p.ID, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPolicies(ctx context.Context, kind string, activeOnly bool) ([]models.Policy, error) {
	query := `SELECT id, name, kind, priority, active, rules, created_by, created_at FROM policies`
	args := []any{}
	where := ""
	if kind != "" {
		where = ` WHERE kind = $1`
		args = append(args, kind)
	}
	if activeOnly {
		if where == "" {
			where = ` WHERE active = TRUE`
		} else {
			where += ` AND active = TRUE`
		}
	}
	// Highest priority first, stable by id for equal priorities
	query += where + ` ORDER BY priority DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		var p models.Policy
		var rules []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Priority, &p.Active, &rules, &p.CreatedBy, &p.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal(rules, &p.Rules); err != nil {
			continue
		}
		policies = append(policies, p)
	}

	return policies, nil
}

func (s *PostgresStore) UpdatePolicy(ctx context.Context, p models.Policy) error {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE policies SET name = $1, kind = $2, priority = $3, active = $4, rules = $5 WHERE id = $6`,
		p.Name, p.Kind, p.Priority, p.Active, rules, p.ID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("policy not found")
	}
	return nil
}

func (s *PostgresStore) DeletePolicy(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id)
	return err
}

// Resource methods

func (s *PostgresStore) CreateResource(ctx context.Context, r models.Resource) (models.Resource, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO resources (id, type, owner_id, sensitivity, trashed, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, COALESCE($5, NOW()))
		 RETURNING created_at`,
		r.ID, r.Type, r.OwnerID, r.Sensitivity, sql.NullTime{Time: r.CreatedAt, Valid: !r.CreatedAt.IsZero()},
	).Scan(&r.CreatedAt)

	return r, err
}

func (s *PostgresStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	var r models.Resource
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, owner_id, sensitivity, trashed, created_at FROM resources WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Type, &r.OwnerID, &r.Sensitivity, &r.Trashed, &r.CreatedAt)

	if err == sql.ErrNoRows {
		return models.Resource{}, errors.New("resource not found")
	}
	return r, err
}

func (s *PostgresStore) GetResources(ctx context.Context, includeTrashed bool) ([]models.Resource, error) {
	query := `SELECT id, type, owner_id, sensitivity, trashed, created_at FROM resources`
	if !includeTrashed {
		query += ` WHERE trashed = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.Type, &r.OwnerID, &r.Sensitivity, &r.Trashed, &r.CreatedAt); err != nil {
			continue
		}
		resources = append(resources, r)
	}

	return resources, nil
}

func (s *PostgresStore) TrashResource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE resources SET trashed = TRUE WHERE id = $1`, id)
	return err
}

// Classification methods

func (s *PostgresStore) UpsertClassification(ctx context.Context, c models.Classification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications (resource_id, label, policy_id, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (resource_id)
		 DO UPDATE SET label = EXCLUDED.label, policy_id = EXCLUDED.policy_id, updated_at = NOW()`,
		c.ResourceID, c.Label, c.PolicyID,
	)
	return err
}

func (s *PostgresStore) GetClassification(ctx context.Context, resourceID string) (models.Classification, error) {
	var c models.Classification
	err := s.db.QueryRowContext(ctx,
		`SELECT resource_id, label, policy_id, updated_at FROM classifications WHERE resource_id = $1`,
		resourceID,
	).Scan(&c.ResourceID, &c.Label, &c.PolicyID, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return models.Classification{}, errors.New("classification not found")
	}
	return c, err
}

// Audit methods

func (s *PostgresStore) InsertAudit(ctx context.Context, actorID int, action, targetType, targetID, metadata string) error {
	if metadata == "" {
		metadata = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor_id, action, target_type, target_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		actorID, action, targetType, targetID, metadata,
	)
	return err
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, action, target_type, target_id, metadata, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.TargetType, &entry.TargetID, &entry.Metadata, &entry.CreatedAt); err != nil {
			continue
		}
		logs = append(logs, entry)
	}

	return logs, nil
}
