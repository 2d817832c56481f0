package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// entrySelect loads entries together with their vote sum and label
// aggregates so filters and comparators can work on a single row.
const entrySelect = `
	SELECT e.key, e.title, e.content, e.type, e.status, e.rank, e.stars,
		COALESCE(v.vote_sum, 0),
		COALESCE(l.labels::text, '[]'),
		e.created_at, e.updated_at, e.created_by
	FROM entries e
	LEFT JOIN (
		SELECT entry_key, SUM(value)::int AS vote_sum
		FROM votes GROUP BY entry_key
	) v ON v.entry_key = e.key
	LEFT JOIN (
		SELECT entry_key, json_agg(label ORDER BY label) AS labels
		FROM entry_labels GROUP BY entry_key
	) l ON l.entry_key = e.key
`

func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var item Entry
	var labelsRaw string
	err := scan(
		&item.Key,
		&item.Title,
		&item.Content,
		&item.Type,
		&item.Status,
		&item.Rank,
		&item.Stars,
		&item.VoteSum,
		&labelsRaw,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CreatedBy,
	)
	if err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(labelsRaw), &item.Labels); err != nil {
		return Entry{}, fmt.Errorf("decode entry labels: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	items := make([]Entry, 0)
	for rows.Next() {
		item, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, entrySelect+` ORDER BY e.rank ASC, e.key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return s.collectEntries(rows)
}

func (s *PostgresStore) GetEntry(ctx context.Context, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, entrySelect+` WHERE e.key=$1`, key)
	item, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return item, nil
}

// InsertEntry appends the entry at the bottom of the global order when
// its rank is zero, otherwise the given rank is used as-is.
func (s *PostgresStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	rank := entry.Rank
	if rank == 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rank), 0) + 1 FROM entries`).Scan(&rank); err != nil {
			return Entry{}, fmt.Errorf("next rank: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (key, title, content, type, status, rank, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.Key, entry.Title, entry.Content, entry.Type, entry.Status, rank, entry.CreatedBy)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return s.GetEntry(ctx, entry.Key)
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, key string, update EntryUpdate) (Entry, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries
		SET title=COALESCE($2::text, title),
			content=COALESCE($3::text, content),
			type=COALESCE($4::text, type),
			status=COALESCE($5::text, status),
			updated_at=NOW()
		WHERE key=$1
	`, key, update.Title, update.Content, update.Type, update.Status)
	if err != nil {
		return Entry{}, fmt.Errorf("update entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Entry{}, fmt.Errorf("update entry rows: %w", err)
	}
	if affected == 0 {
		return Entry{}, ErrNotFound
	}
	return s.GetEntry(ctx, key)
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key=$1`, key)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SearchEntries(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, entrySelect+`
		WHERE e.title ILIKE '%' || $1 || '%' OR e.content ILIKE '%' || $1 || '%'
		ORDER BY e.rank ASC, e.key ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	return s.collectEntries(rows)
}

// FetchByKey, FetchRankWindow, and UpdateRank form the persistence
// contract of the reorder engine.

func (s *PostgresStore) FetchByKey(ctx context.Context, key string) (Entry, error) {
	return s.GetEntry(ctx, key)
}

func (s *PostgresStore) FetchRankWindow(ctx context.Context, low, high float64, includeLow, includeHigh bool) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, entrySelect+`
		WHERE (e.rank > $1 OR ($3::boolean AND e.rank = $1))
		  AND (e.rank < $2 OR ($4::boolean AND e.rank = $2))
		ORDER BY e.rank ASC, e.key ASC
	`, low, high, includeLow, includeHigh)
	if err != nil {
		return nil, fmt.Errorf("fetch rank window: %w", err)
	}
	return s.collectEntries(rows)
}

func (s *PostgresStore) UpdateRank(ctx context.Context, key string, rank float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET rank=$2, updated_at=NOW() WHERE key=$1
	`, key, rank)
	if err != nil {
		return fmt.Errorf("update rank: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rank rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVote records a user's vote on an entry. A zero value removes the
// vote. Returns the entry's new vote sum.
func (s *PostgresStore) SetVote(ctx context.Context, entryKey, voter string, value int) (int, error) {
	if value == 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM votes WHERE entry_key=$1 AND voter=$2
		`, entryKey, voter); err != nil {
			return 0, fmt.Errorf("delete vote: %w", err)
		}
	} else {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO votes (entry_key, voter, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (entry_key, voter)
			DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
		`, entryKey, voter, value); err != nil {
			return 0, fmt.Errorf("upsert vote: %w", err)
		}
	}
	var sum int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0)::int FROM votes WHERE entry_key=$1
	`, entryKey).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum votes: %w", err)
	}
	return sum, nil
}

// SetRating upserts a user's star rating and writes the new average,
// rounded to the nearest half star, back to the entry.
func (s *PostgresStore) SetRating(ctx context.Context, entryKey, userID string, rating float64) (float64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (entry_key, user_id, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (entry_key, user_id)
		DO UPDATE SET rating=EXCLUDED.rating, updated_at=NOW()
	`, entryKey, userID, rating); err != nil {
		return 0, fmt.Errorf("upsert rating: %w", err)
	}

	var avg float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0) FROM ratings WHERE entry_key=$1
	`, entryKey).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average ratings: %w", err)
	}
	stars := math.Round(avg*2) / 2

	if _, err := s.db.ExecContext(ctx, `
		UPDATE entries SET stars=$2, updated_at=NOW() WHERE key=$1
	`, entryKey, stars); err != nil {
		return 0, fmt.Errorf("write back stars: %w", err)
	}
	return stars, nil
}

func (s *PostgresStore) ListLabels(ctx context.Context) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, color FROM labels ORDER BY label ASC`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var item Label
		if err := rows.Scan(&item.Label, &item.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

// ReplaceEntryLabels swaps the entry's label set. Unknown labels are
// created on the fly with the default color.
func (s *PostgresStore) ReplaceEntryLabels(ctx context.Context, entryKey string, labelNames []string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entry_labels WHERE entry_key=$1`, entryKey); err != nil {
		return fmt.Errorf("clear entry labels: %w", err)
	}
	for _, name := range labelNames {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO labels (label) VALUES ($1) ON CONFLICT (label) DO NOTHING
		`, name); err != nil {
			return fmt.Errorf("ensure label: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO entry_labels (entry_key, label) VALUES ($1, $2)
			ON CONFLICT (entry_key, label) DO NOTHING
		`, entryKey, name); err != nil {
			return fmt.Errorf("attach label: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ReplaceEntryRelations(ctx context.Context, entryKey string, relations []Relation) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entry_relations WHERE entry_key=$1`, entryKey); err != nil {
		return fmt.Errorf("clear entry relations: %w", err)
	}
	for _, rel := range relations {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO entry_relations (entry_key, relation_type, target_key)
			VALUES ($1, $2, $3)
			ON CONFLICT (entry_key, relation_type, target_key) DO NOTHING
		`, entryKey, rel.Type, rel.TargetKey); err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListEntryRelations(ctx context.Context, entryKey string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relation_type, target_key
		FROM entry_relations
		WHERE entry_key=$1
		ORDER BY relation_type ASC, target_key ASC
	`, entryKey)
	if err != nil {
		return nil, fmt.Errorf("list entry relations: %w", err)
	}
	defer rows.Close()

	items := make([]Relation, 0)
	for rows.Next() {
		var item Relation
		if err := rows.Scan(&item.Type, &item.TargetKey); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListAssemblies(ctx context.Context) ([]Assembly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, owner, sort_order, is_default, created_at, updated_at
		FROM assemblies
		ORDER BY is_default DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list assemblies: %w", err)
	}
	defer rows.Close()

	items := make([]Assembly, 0)
	for rows.Next() {
		var item Assembly
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Owner, &item.SortOrder, &item.IsDefault, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assembly: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assemblies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAssembly(ctx context.Context, assemblyID string) (Assembly, error) {
	var item Assembly
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner, sort_order, is_default, created_at, updated_at
		FROM assemblies
		WHERE id=$1
	`, assemblyID).Scan(&item.ID, &item.Name, &item.Description, &item.Owner, &item.SortOrder, &item.IsDefault, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Assembly{}, ErrNotFound
	}
	if err != nil {
		return Assembly{}, fmt.Errorf("get assembly: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetAssemblyConfig(ctx context.Context, assemblyID string) (AssemblyConfig, error) {
	var cfg AssemblyConfig
	cfg.Includes = []string{}
	cfg.Excludes = []string{}
	cfg.Filters = []AssemblyFilterRow{}
	cfg.Columns = map[string]bool{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_key FROM assembly_includes WHERE assembly_id=$1 ORDER BY entry_key ASC
	`, assemblyID)
	if err != nil {
		return AssemblyConfig{}, fmt.Errorf("list assembly includes: %w", err)
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return AssemblyConfig{}, fmt.Errorf("scan include: %w", err)
		}
		cfg.Includes = append(cfg.Includes, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return AssemblyConfig{}, fmt.Errorf("iterate includes: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT entry_key FROM assembly_excludes WHERE assembly_id=$1 ORDER BY entry_key ASC
	`, assemblyID)
	if err != nil {
		return AssemblyConfig{}, fmt.Errorf("list assembly excludes: %w", err)
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return AssemblyConfig{}, fmt.Errorf("scan exclude: %w", err)
		}
		cfg.Excludes = append(cfg.Excludes, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return AssemblyConfig{}, fmt.Errorf("iterate excludes: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT filter_type, value, visible_in_view
		FROM assembly_filters
		WHERE assembly_id=$1
		ORDER BY id ASC
	`, assemblyID)
	if err != nil {
		return AssemblyConfig{}, fmt.Errorf("list assembly filters: %w", err)
	}
	for rows.Next() {
		var row AssemblyFilterRow
		if err := rows.Scan(&row.FilterType, &row.Value, &row.VisibleInView); err != nil {
			rows.Close()
			return AssemblyConfig{}, fmt.Errorf("scan filter: %w", err)
		}
		cfg.Filters = append(cfg.Filters, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return AssemblyConfig{}, fmt.Errorf("iterate filters: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT column_name, visible FROM assembly_columns WHERE assembly_id=$1
	`, assemblyID)
	if err != nil {
		return AssemblyConfig{}, fmt.Errorf("list assembly columns: %w", err)
	}
	for rows.Next() {
		var name string
		var visible bool
		if err := rows.Scan(&name, &visible); err != nil {
			rows.Close()
			return AssemblyConfig{}, fmt.Errorf("scan column: %w", err)
		}
		cfg.Columns[name] = visible
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return AssemblyConfig{}, fmt.Errorf("iterate columns: %w", err)
	}
	rows.Close()

	return cfg, nil
}

func (s *PostgresStore) InsertAssembly(ctx context.Context, assembly Assembly, cfg AssemblyConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assemblies (id, name, description, owner, sort_order, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, assembly.ID, assembly.Name, assembly.Description, assembly.Owner, assembly.SortOrder, assembly.IsDefault)
	if err != nil {
		return fmt.Errorf("insert assembly: %w", err)
	}
	return s.replaceAssemblyConfig(ctx, assembly.ID, cfg)
}

func (s *PostgresStore) UpdateAssembly(ctx context.Context, assembly Assembly, cfg AssemblyConfig) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE assemblies
		SET name=$2, description=$3, sort_order=$4, is_default=$5, updated_at=NOW()
		WHERE id=$1
	`, assembly.ID, assembly.Name, assembly.Description, assembly.SortOrder, assembly.IsDefault)
	if err != nil {
		return fmt.Errorf("update assembly: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assembly rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return s.replaceAssemblyConfig(ctx, assembly.ID, cfg)
}

func (s *PostgresStore) replaceAssemblyConfig(ctx context.Context, assemblyID string, cfg AssemblyConfig) error {
	for _, table := range []string{"assembly_includes", "assembly_excludes", "assembly_filters", "assembly_columns"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE assembly_id=$1`, assemblyID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, key := range cfg.Includes {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO assembly_includes (assembly_id, entry_key) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, assemblyID, key); err != nil {
			return fmt.Errorf("insert include: %w", err)
		}
	}
	for _, key := range cfg.Excludes {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO assembly_excludes (assembly_id, entry_key) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, assemblyID, key); err != nil {
			return fmt.Errorf("insert exclude: %w", err)
		}
	}
	for _, filter := range cfg.Filters {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO assembly_filters (assembly_id, filter_type, value, visible_in_view)
			VALUES ($1, $2, $3, $4)
		`, assemblyID, filter.FilterType, filter.Value, filter.VisibleInView); err != nil {
			return fmt.Errorf("insert filter: %w", err)
		}
	}
	for name, visible := range cfg.Columns {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO assembly_columns (assembly_id, column_name, visible) VALUES ($1, $2, $3)
			ON CONFLICT (assembly_id, column_name) DO UPDATE SET visible=EXCLUDED.visible
		`, assemblyID, name, visible); err != nil {
			return fmt.Errorf("insert column: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteAssembly(ctx context.Context, assemblyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM assemblies WHERE id=$1`, assemblyID)
	if err != nil {
		return fmt.Errorf("delete assembly: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assembly rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, created_at, updated_at
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// EnsureUser upserts a known identity, used for the development
// bypass account.
func (s *PostgresStore) EnsureUser(ctx context.Context, user User) (User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, is_email_verified)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, email=EXCLUDED.email
	`, user.ID, user.DisplayName, user.Email)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.is_email_verified, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
