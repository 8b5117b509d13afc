package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/contract"
	"clauseguard/api/internal/ledger"
)

// ErrDocumentNotFound is returned when a document id resolves to nothing.
var ErrDocumentNotFound = errors.New("document not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ========== Users ==========

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, password_hash, role FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.PasswordHash, &user.Role)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (display_name, email)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.clauseguard.dev'))
		RETURNING id, display_name, password_hash, role
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.DisplayName, &user.PasswordHash, &user.Role); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// SetUserPassword stores the bcrypt hash for an account that logged in with
// a password for the first time.
func (s *PostgresStore) SetUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, role FROM users WHERE id=$1`, userID,
	).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ========== Refresh sessions (PostgreSQL fallback when Redis is absent) ==========

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

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ========== Documents ==========

// InsertDocument persists a freshly created aggregate: the document row, all
// ingested clauses, and the seed version, in one transaction.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc *contract.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert document: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, current_text, source_object, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.Title, doc.CurrentText, doc.SourceObject, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for i, c := range doc.Clauses.List() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO clauses (document_id, id, position, title, risk_level, original_text,
				current_text, safer_alternative, confidence, explanation, accepted, degraded)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, doc.ID, c.ID, i, c.Title, string(c.Risk), c.OriginalText,
			c.CurrentText, c.SaferAlternative, c.Confidence, c.Explanation, c.Accepted, c.Degraded)
		if err != nil {
			return fmt.Errorf("insert clause %s: %w", c.ID, err)
		}
	}

	for _, v := range doc.Versions.List() {
		if err := insertVersion(ctx, tx, doc.ID, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert document: %w", err)
	}
	return nil
}

// GetDocument loads the full aggregate: document row, clauses in extraction
// order, versions oldest first.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*contract.Document, error) {
	doc := &contract.Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, current_text, source_object, created_by, created_at, updated_at
		FROM documents WHERE id=$1
	`, id).Scan(&doc.ID, &doc.Title, &doc.CurrentText, &doc.SourceObject, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	clauses, err := s.loadClauses(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Clauses = clause.NewStore(clauses)

	versions, err := s.loadVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Versions, err = ledger.Load(versions)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) loadClauses(ctx context.Context, documentID string) ([]*clause.Clause, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, risk_level, original_text, current_text, safer_alternative,
			confidence, explanation, accepted, degraded
		FROM clauses WHERE document_id=$1 ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("load clauses: %w", err)
	}
	defer rows.Close()

	var clauses []*clause.Clause
	for rows.Next() {
		c := &clause.Clause{}
		var risk string
		if err := rows.Scan(&c.ID, &c.Title, &risk, &c.OriginalText, &c.CurrentText,
			&c.SaferAlternative, &c.Confidence, &c.Explanation, &c.Accepted, &c.Degraded); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		c.Risk = clause.RiskLevel(risk)
		clauses = append(clauses, c)
	}
	return clauses, rows.Err()
}

func (s *PostgresStore) loadVersions(ctx context.Context, documentID string) ([]*ledger.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, major, minor, status, author, change_description,
			changed_clause_id, changed_original_text, changed_new_text, snapshot, created_at
		FROM versions WHERE document_id=$1 ORDER BY major, minor
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	defer rows.Close()

	var versions []*ledger.Version
	for rows.Next() {
		v := &ledger.Version{}
		var status string
		var changedID, changedOriginal, changedNew sql.NullString
		if err := rows.Scan(&v.ID, &v.Sequence.Major, &v.Sequence.Minor, &status, &v.Author,
			&v.ChangeDescription, &changedID, &changedOriginal, &changedNew, &v.Snapshot, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.Status = ledger.Status(status)
		if changedID.Valid {
			v.Change = &ledger.ClauseChange{
				ClauseID:     changedID.String,
				OriginalText: changedOriginal.String,
				NewText:      changedNew.String,
			}
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.created_by, d.created_at, d.updated_at,
			(SELECT COUNT(*) FROM clauses c WHERE c.document_id = d.id),
			(SELECT COUNT(*) FROM clauses c WHERE c.document_id = d.id AND c.accepted),
			(SELECT COUNT(*) FROM clauses c WHERE c.document_id = d.id AND c.risk_level IN ('high', 'critical')),
			(SELECT v.major || '.' || v.minor FROM versions v WHERE v.document_id = d.id AND v.status = 'current')
		FROM documents d
		ORDER BY d.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var items []DocumentSummary
	for rows.Next() {
		var item DocumentSummary
		var seq sql.NullString
		if err := rows.Scan(&item.ID, &item.Title, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
			&item.ClauseCount, &item.AcceptedCount, &item.HighRiskCount, &seq); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		item.CurrentSequence = seq.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// ========== Acceptance ==========

// SaveAcceptance persists the outcome of an accepted clause as one atomic
// unit: the mutated clause, the archived predecessor, the new current
// version, and the document's updated text. A clause marked accepted with no
// committed version must never be observable, even across a crash.
func (s *PostgresStore) SaveAcceptance(ctx context.Context, doc *contract.Document, cl *clause.Clause, committed *ledger.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin acceptance: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE clauses SET current_text=$1, accepted=TRUE
		WHERE document_id=$2 AND id=$3
	`, cl.CurrentText, doc.ID, cl.ID)
	if err != nil {
		return fmt.Errorf("update clause: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: clause %s", clause.ErrNotFound, cl.ID)
	}

	// Archive before insert: the partial unique index allows only one
	// current version per document.
	if _, err := tx.ExecContext(ctx, `
		UPDATE versions SET status='archived'
		WHERE document_id=$1 AND status='current'
	`, doc.ID); err != nil {
		return fmt.Errorf("archive current version: %w", err)
	}

	if err := insertVersion(ctx, tx, doc.ID, committed); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET current_text=$1, updated_at=$2 WHERE id=$3
	`, doc.CurrentText, doc.UpdatedAt, doc.ID); err != nil {
		return fmt.Errorf("update document text: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit acceptance: %w", err)
	}
	return nil
}

// SetVersionCommitHash records the git archive hash for a version after the
// mirror commit lands; the append-only trigger permits this one field.
func (s *PostgresStore) SetVersionCommitHash(ctx context.Context, versionID, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE versions SET commit_hash=$1 WHERE id=$2`, hash, versionID)
	if err != nil {
		return fmt.Errorf("set version commit hash: %w", err)
	}
	return nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, documentID string, v *ledger.Version) error {
	var changedID, changedOriginal, changedNew sql.NullString
	if v.Change != nil {
		changedID = sql.NullString{String: v.Change.ClauseID, Valid: true}
		changedOriginal = sql.NullString{String: v.Change.OriginalText, Valid: true}
		changedNew = sql.NullString{String: v.Change.NewText, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO versions (id, document_id, major, minor, status, author, change_description,
			changed_clause_id, changed_original_text, changed_new_text, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, v.ID, documentID, v.Sequence.Major, v.Sequence.Minor, string(v.Status), v.Author,
		v.ChangeDescription, changedID, changedOriginal, changedNew, v.Snapshot, v.Timestamp)
	if err != nil {
		return fmt.Errorf("insert version %s: %w", v.Sequence, err)
	}
	return nil
}
