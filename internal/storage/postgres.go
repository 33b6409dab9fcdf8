package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

type PostgresStore struct {
	pool           *pgxpool.Pool
	lockPartitions int
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, lockPartitions int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, lockPartitions: lockPartitions}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn in a READ COMMITTED transaction. Statements after an advisory lock
// must see rows committed by the previous holder, which rules out a snapshot taken
// at transaction start.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Matcher ---

const (
	closestRegisteredSQL = `SELECT id, embedding <=> $1 AS distance
		 FROM registered_identities
		 WHERE embedding <=> $1 <= $2
		 ORDER BY distance, id LIMIT 1`
	closestObservedSQL = `SELECT id, embedding <=> $1 AS distance
		 FROM observed_identities
		 WHERE NOT is_registered AND embedding <=> $1 <= $2
		 ORDER BY distance, id LIMIT 1`
)

// FindClosest runs an exact nearest-neighbour scan. No approximate index is used so
// the threshold comparison is evaluated against every candidate.
func (s *PostgresStore) FindClosest(ctx context.Context, pool models.Pool, embedding []float32, threshold float64) (*models.Match, error) {
	var query string
	switch pool {
	case models.PoolRegistered:
		query = closestRegisteredSQL
	case models.PoolObserved:
		query = closestObservedSQL
	default:
		return nil, fmt.Errorf("%w: unknown pool %q", models.ErrValidation, pool)
	}
	return findClosest(ctx, s.pool, query, embedding, threshold)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findClosest(ctx context.Context, q querier, query string, embedding []float32, threshold float64) (*models.Match, error) {
	var m models.Match
	err := q.QueryRow(ctx, query, pgvector.NewVector(embedding), threshold).Scan(&m.ID, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find closest", err)
	}
	return &m, nil
}

// --- Registered ---

func (s *PostgresStore) GetRegistered(ctx context.Context, id uuid.UUID) (*models.RegisteredIdentity, error) {
	var r models.RegisteredIdentity
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, role_name, status_name, access_zones, created_at
		 FROM registered_identities WHERE id = $1`, id).
		Scan(&r.ID, &r.FullName, &r.RoleName, &r.StatusName, &r.AccessZones, &r.CreatedAt)
	if err != nil {
		return nil, notFoundOr("get registered", err)
	}
	return &r, nil
}

// AddRegistered inserts a registered identity. Enrolment is owned elsewhere; this
// backs seeding and tests.
func (s *PostgresStore) AddRegistered(ctx context.Context, r models.RegisteredIdentity) (*models.RegisteredIdentity, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.AccessZones == nil {
		r.AccessZones = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO registered_identities (id, full_name, role_name, status_name, access_zones, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		r.ID, r.FullName, r.RoleName, r.StatusName, r.AccessZones, pgvector.NewVector(r.Embedding),
	).Scan(&r.CreatedAt)
	if err != nil {
		return nil, unavailable("add registered", err)
	}
	return &r, nil
}

// --- Observed ---

const observedColumns = `id, first_seen_at, last_seen_at, access_count, status, expires_at,
	alert_triggered, consecutive_denied_accesses, potential_match_user_id,
	last_accessed_zones, is_registered, face_image_key, created_at, updated_at`

func observedDest(o *models.ObservedIdentity) []any {
	return []any{&o.ID, &o.FirstSeenAt, &o.LastSeenAt, &o.AccessCount, &o.Status, &o.ExpiresAt,
		&o.AlertTriggered, &o.ConsecutiveDeniedAccesses, &o.PotentialMatchUserID,
		&o.LastAccessedZones, &o.IsRegistered, &o.FaceImageKey, &o.CreatedAt, &o.UpdatedAt}
}

func scanObserved(row pgx.Row) (*models.ObservedIdentity, error) {
	var o models.ObservedIdentity
	if err := row.Scan(observedDest(&o)...); err != nil {
		return nil, err
	}
	return &o, nil
}

// scanObservedWithEmbedding reads observedColumns followed by embedding.
func scanObservedWithEmbedding(row pgx.Row) (*models.ObservedIdentity, error) {
	var (
		o   models.ObservedIdentity
		emb pgvector.Vector
	)
	if err := row.Scan(append(observedDest(&o), &emb)...); err != nil {
		return nil, err
	}
	o.Embedding = emb.Slice()
	return &o, nil
}

const touchSQL = `UPDATE observed_identities SET
		consecutive_denied_accesses = CASE
			WHEN status = 'active_temporal' AND expires_at > $2 THEN 0
			ELSE consecutive_denied_accesses + 1
		END,
		access_count = access_count + 1,
		last_seen_at = $2,
		updated_at = $2,
		last_accessed_zones = CASE
			WHEN $3::text = '' OR $3::text = ANY(last_accessed_zones) THEN last_accessed_zones
			ELSE array_append(last_accessed_zones, $3::text)
		END
	 WHERE id = $1 AND NOT is_registered
	 RETURNING ` + observedColumns

// FindOrCreate holds a transaction-scoped advisory lock keyed on the embedding's
// bucket while it re-queries the observed pool and inserts on a miss.
func (s *PostgresStore) FindOrCreate(ctx context.Context, n models.NewObserved, threshold float64) (*models.ObservedIdentity, float64, bool, error) {
	var (
		obs      *models.ObservedIdentity
		distance float64
		created  bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		key := CreationLockKey(n.Embedding, s.lockPartitions)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
			return unavailable("acquire creation lock", err)
		}

		m, err := findClosest(ctx, tx, closestObservedSQL, n.Embedding, threshold)
		if err != nil {
			return err
		}
		if m != nil {
			obs, err = scanObserved(tx.QueryRow(ctx, touchSQL, m.ID, n.SeenAt, n.Zone))
			if err != nil {
				return notFoundOr("touch observed", err)
			}
			distance = m.Distance
			return nil
		}

		zones := []string{}
		if n.Zone != "" {
			zones = append(zones, n.Zone)
		}
		obs, err = scanObserved(tx.QueryRow(ctx,
			`INSERT INTO observed_identities
			 (id, embedding, first_seen_at, last_seen_at, access_count, status, expires_at,
			  potential_match_user_id, last_accessed_zones, created_at, updated_at)
			 VALUES ($1, $2, $3, $3, 1, $4, $5, $6, $7, $3, $3)
			 RETURNING `+observedColumns,
			uuid.New(), pgvector.NewVector(n.Embedding), n.SeenAt,
			models.ObservedStatusActiveTemporal, n.ExpiresAt, n.PotentialMatchUserID, zones))
		if err != nil {
			return unavailable("insert observed", err)
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrDatastoreUnavailable) || errors.Is(err, models.ErrNotFound) {
			return nil, 0, false, err
		}
		return nil, 0, false, unavailable("find or create observed", err)
	}
	return obs, distance, created, nil
}

func (s *PostgresStore) Touch(ctx context.Context, id uuid.UUID, t models.Touch) (*models.ObservedIdentity, error) {
	o, err := scanObserved(s.pool.QueryRow(ctx, touchSQL, id, t.SeenAt, t.Zone))
	if err != nil {
		return nil, notFoundOr("touch observed", err)
	}
	return o, nil
}

func (s *PostgresStore) GetObserved(ctx context.Context, id uuid.UUID) (*models.ObservedIdentity, error) {
	o, err := scanObserved(s.pool.QueryRow(ctx,
		`SELECT `+observedColumns+` FROM observed_identities WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr("get observed", err)
	}
	return o, nil
}

func (s *PostgresStore) SetFaceImage(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE observed_identities SET face_image_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return unavailable("set face image", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("observed %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// UpdateObserved locks the row, lets mutate decide the new state and writes back
// status, expiry and the registration flag. is_registered never reverts. The
// returned identity carries its embedding for the promotion hand-off.
func (s *PostgresStore) UpdateObserved(ctx context.Context, id uuid.UUID, mutate func(*models.ObservedIdentity) error) (*models.ObservedIdentity, error) {
	var updated *models.ObservedIdentity
	var mutateErr error
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanObserved(tx.QueryRow(ctx,
			`SELECT `+observedColumns+` FROM observed_identities WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr("lock observed", err)
		}
		if err := mutate(current); err != nil {
			mutateErr = err
			return err
		}
		updated, err = scanObservedWithEmbedding(tx.QueryRow(ctx,
			`UPDATE observed_identities
			 SET status = $2, expires_at = $3, is_registered = is_registered OR $4, updated_at = now()
			 WHERE id = $1
			 RETURNING `+observedColumns+`, embedding`,
			id, current.Status, current.ExpiresAt, current.IsRegistered))
		if err != nil {
			return unavailable("update observed", err)
		}
		return nil
	})
	if mutateErr != nil {
		return nil, mutateErr
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrDatastoreUnavailable) {
			return nil, err
		}
		return nil, unavailable("update observed", err)
	}
	return updated, nil
}

func (s *PostgresStore) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE observed_identities SET status = 'expired', updated_at = $1
		 WHERE status = 'active_temporal' AND NOT is_registered AND expires_at < $1`, now)
	if err != nil {
		return 0, unavailable("expire observed", err)
	}
	return tag.RowsAffected(), nil
}

// --- Listing ---

var observedSortColumns = map[string]bool{
	"first_seen_at":               true,
	"last_seen_at":                true,
	"access_count":                true,
	"expires_at":                  true,
	"status":                      true,
	"consecutive_denied_accesses": true,
}

func (s *PostgresStore) ListObserved(ctx context.Context, q models.ObservedQuery) (*models.ObservedPage, error) {
	page := &models.ObservedPage{Items: []models.ObservedIdentity{}}

	c := &page.Counts
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE potential_match_user_id IS NOT NULL),
		        COUNT(*) FILTER (WHERE alert_triggered OR consecutive_denied_accesses >= $1),
		        COUNT(*) FILTER (WHERE status = 'active_temporal'),
		        COUNT(*) FILTER (WHERE status = 'expired')
		 FROM observed_identities WHERE NOT is_registered`, q.HighRiskDenials).
		Scan(&c.AbsoluteTotal, &c.PendingReview, &c.HighRisk, &c.ActiveTemporal, &c.Expired)
	if err != nil {
		return nil, unavailable("count observed", err)
	}

	baseWhere := "WHERE NOT is_registered"
	args := []interface{}{}
	argIdx := 1

	switch q.Filter {
	case models.FilterPendingReview:
		baseWhere += " AND potential_match_user_id IS NOT NULL"
	case models.FilterHighRisk:
		baseWhere += fmt.Sprintf(" AND (alert_triggered OR consecutive_denied_accesses >= $%d)", argIdx)
		args = append(args, q.HighRiskDenials)
		argIdx++
	case models.FilterActiveTemporal:
		baseWhere += " AND status = 'active_temporal'"
	case models.FilterExpired:
		baseWhere += " AND status = 'expired'"
	}
	if q.SearchTerm != "" {
		baseWhere += fmt.Sprintf(
			" AND (id::text ILIKE $%[1]d OR status ILIKE $%[1]d OR array_to_string(last_accessed_zones, ' ') ILIKE $%[1]d)",
			argIdx)
		args = append(args, "%"+escapeLike(q.SearchTerm)+"%")
		argIdx++
	}

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM observed_identities "+baseWhere, args...).
		Scan(&page.FilteredTotal); err != nil {
		return nil, unavailable("count filtered observed", err)
	}

	sortCol := "last_seen_at"
	if observedSortColumns[q.SortField] {
		sortCol = q.SortField
	}
	dir := "ASC"
	if q.SortDescending {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM observed_identities %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		observedColumns, baseWhere, sortCol, dir, argIdx, argIdx+1)
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list observed", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanObserved(rows)
		if err != nil {
			return nil, unavailable("scan observed", err)
		}
		page.Items = append(page.Items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate observed", err)
	}
	return page, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// --- Decisions ---

func (s *PostgresStore) InsertDecision(ctx context.Context, d *models.AccessDecision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_decisions (id, timestamp, registered_user_id, observed_user_id, zone, decision, match_status, reason, confidence_score, user_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Timestamp, d.RegisteredUserID, d.ObservedUserID, d.Zone,
		d.Decision, d.MatchStatus, d.Reason, d.ConfidenceScore, d.UserType)
	if err != nil {
		return unavailable("insert decision", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, q models.DecisionQuery) ([]models.AccessDecision, int, error) {
	limit, offset := decisionWindow(q)

	baseWhere := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if q.Zone != "" {
		baseWhere += fmt.Sprintf(" AND zone = $%d", argIdx)
		args = append(args, q.Zone)
		argIdx++
	}
	if q.Decision != "" {
		baseWhere += fmt.Sprintf(" AND decision = $%d", argIdx)
		args = append(args, q.Decision)
		argIdx++
	}
	if q.UserType != "" {
		baseWhere += fmt.Sprintf(" AND user_type = $%d", argIdx)
		args = append(args, q.UserType)
		argIdx++
	}
	if q.From != nil {
		baseWhere += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *q.From)
		argIdx++
	}
	if q.To != nil {
		baseWhere += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *q.To)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM access_decisions "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("count decisions", err)
	}

	query := fmt.Sprintf(
		`SELECT id, timestamp, registered_user_id, observed_user_id, zone, decision, match_status, reason, confidence_score, user_type
		 FROM access_decisions %s ORDER BY timestamp DESC, id LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, unavailable("query decisions", err)
	}
	defer rows.Close()

	decisions := []models.AccessDecision{}
	for rows.Next() {
		var d models.AccessDecision
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.RegisteredUserID, &d.ObservedUserID, &d.Zone,
			&d.Decision, &d.MatchStatus, &d.Reason, &d.ConfidenceScore, &d.UserType); err != nil {
			return nil, 0, unavailable("scan decision", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("iterate decisions", err)
	}
	return decisions, total, nil
}
