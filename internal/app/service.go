package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"clauseguard/api/internal/auth"
	"clauseguard/api/internal/authpw"
	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/config"
	"clauseguard/api/internal/contract"
	"clauseguard/api/internal/export"
	"clauseguard/api/internal/gitarchive"
	"clauseguard/api/internal/ledger"
	"clauseguard/api/internal/metrics"
	"clauseguard/api/internal/rbac"
	"clauseguard/api/internal/revision"
	"clauseguard/api/internal/search"
	"clauseguard/api/internal/store"
	"clauseguard/api/internal/util"

	"github.com/rs/zerolog"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	SetUserPassword(ctx context.Context, userID, passwordHash string) error
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertDocument(context.Context, *contract.Document) error
	GetDocument(context.Context, string) (*contract.Document, error)
	ListDocuments(context.Context) ([]store.DocumentSummary, error)
	SaveAcceptance(context.Context, *contract.Document, *clause.Clause, *ledger.Version) error
	SetVersionCommitHash(context.Context, string, string) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens: Redis when configured, Postgres
// otherwise. Both backends expose the same three calls.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type analyzer interface {
	Analyze(context.Context, string) ([]clause.Raw, error)
}

type archiveService interface {
	Init(documentID, snapshot, author, message string) (gitarchive.CommitInfo, error)
	CommitVersion(documentID, snapshot, author, message string) (gitarchive.CommitInfo, error)
	History(documentID string, limit int) ([]gitarchive.CommitInfo, error)
	SnapshotByHash(documentID, hash string) (string, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord, clauses []search.ClauseRecord)
	Backend() string
}

type sourceStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	analysis analyzer
	archive  archiveService
	search   searchService
	blob     sourceStore
	exporter *export.Service
	engine   revision.Engine
	metrics  *metrics.Metrics
	log      zerolog.Logger

	// one mutex per document serializes accept/reject on the aggregate
	docMu sync.Mutex
	locks map[string]*sync.Mutex
}

type Options struct {
	Store    dataStore
	Sessions sessionStore
	Analysis analyzer
	Archive  archiveService
	Search   searchService
	Blob     sourceStore
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
}

func New(cfg config.Config, opts Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		cfg:      cfg,
		store:    opts.Store,
		sessions: opts.Sessions,
		analysis: opts.Analysis,
		archive:  opts.Archive,
		search:   opts.Search,
		blob:     opts.Blob,
		exporter: export.NewService(),
		metrics:  m,
		log:      opts.Log,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// ========== Sessions ==========

// Login signs in by display name. A password is optional: the first login
// that supplies one claims the name, and later logins must present it.
func (s *Service) Login(ctx context.Context, name, password string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	if user.PasswordHash == "" {
		if pw := strings.TrimSpace(password); pw != "" {
			hash, err := authpw.HashPassword(pw)
			if err != nil {
				return Session{}, err
			}
			if err := s.store.SetUserPassword(ctx, user.ID, hash); err != nil {
				return Session{}, err
			}
		}
	} else if err := authpw.VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ========== Documents ==========

// CreateDocument runs the intake flow: store the raw upload if object
// storage is configured, send the text to the analysis service, ingest the
// clause records, seed the aggregate at version 1.0, persist it, mirror the
// seed into the git archive, and index it for search.
func (s *Service) CreateDocument(ctx context.Context, title, text, userName string, source []byte, sourceName string) (map[string]any, error) {
	documentTitle := strings.TrimSpace(title)
	if documentTitle == "" {
		documentTitle = "Untitled Contract"
	}
	if strings.TrimSpace(text) == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "text is required", nil)
	}

	raw, err := s.analysis.Analyze(ctx, text)
	if err != nil {
		s.metrics.AnalysisRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.AnalysisRequestsTotal.WithLabelValues("ok").Inc()

	clauses, warnings := clause.Ingest(raw)
	doc := contract.New(documentTitle, text, userName, clauses)

	if s.blob != nil && len(source) > 0 {
		key := doc.ID + "/" + sanitizeObjectName(sourceName)
		objectKey, err := s.blob.Put(ctx, key, source, "application/octet-stream")
		if err != nil {
			s.log.Warn().Err(err).Str("document", doc.ID).Msg("source upload failed, continuing without it")
		} else {
			doc.SourceObject = objectKey
		}
	}

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.metrics.DocumentsCreatedTotal.Inc()
	s.metrics.VersionCommitsTotal.Inc()

	seed, err := doc.Versions.Current()
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		message := fmt.Sprintf("v%s: %s", seed.Sequence, seed.ChangeDescription)
		info, err := s.archive.Init(doc.ID, seed.Snapshot, userName, message)
		if err != nil {
			s.log.Warn().Err(err).Str("document", doc.ID).Msg("git archive init failed")
		} else if err := s.store.SetVersionCommitHash(ctx, seed.ID, info.Hash); err != nil {
			s.log.Warn().Err(err).Str("document", doc.ID).Msg("record seed commit hash failed")
		}
	}

	s.indexDocument(doc)
	s.log.Info().
		Str("document", doc.ID).
		Int("clauses", doc.Clauses.Len()).
		Int("warnings", len(warnings)).
		Msg("document created")

	payload := s.documentPayload(doc)
	payload["warnings"] = warningPayload(warnings)
	return payload, nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	return s.store.ListDocuments(ctx)
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.documentPayload(doc), nil
}

func (s *Service) GetClause(ctx context.Context, documentID, clauseID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c, err := doc.Clauses.Get(clauseID)
	if err != nil {
		return nil, err
	}
	return clausePayload(c), nil
}

// ========== Revision ==========

// AcceptClause applies the clause's safer alternative and commits the next
// version. expectedSequence, when non-empty, must match the current version
// or the accept fails with a conflict.
func (s *Service) AcceptClause(ctx context.Context, documentID, clauseID, author, expectedSequence string) (map[string]any, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var expected *ledger.Sequence
	if strings.TrimSpace(expectedSequence) != "" {
		seq, err := ledger.ParseSequence(expectedSequence)
		if err != nil {
			return nil, domainError(422, "VALIDATION_ERROR", "expectedVersion must look like 1.4", nil)
		}
		expected = &seq
	}

	result, err := s.engine.Accept(doc, clauseID, author, expected)
	if err != nil {
		s.metrics.ClauseAcceptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.NoOp {
		s.metrics.ClauseAcceptsTotal.WithLabelValues("noop").Inc()
		payload := s.documentPayload(doc)
		payload["noop"] = true
		payload["version"] = versionPayload(result.Version, false)
		return payload, nil
	}

	if err := s.store.SaveAcceptance(ctx, doc, result.Clause, result.Version); err != nil {
		return nil, fmt.Errorf("persist acceptance: %w", err)
	}
	s.metrics.ClauseAcceptsTotal.WithLabelValues("ok").Inc()
	s.metrics.VersionCommitsTotal.Inc()

	if s.archive != nil {
		message := fmt.Sprintf("v%s: %s", result.Version.Sequence, result.Version.ChangeDescription)
		info, err := s.archive.CommitVersion(documentID, result.Version.Snapshot, author, message)
		if err != nil {
			s.log.Warn().Err(err).Str("document", documentID).Msg("git archive commit failed")
		} else if err := s.store.SetVersionCommitHash(ctx, result.Version.ID, info.Hash); err != nil {
			s.log.Warn().Err(err).Str("document", documentID).Msg("record commit hash failed")
		}
	}

	s.indexDocument(doc)
	s.log.Info().
		Str("document", documentID).
		Str("clause", clauseID).
		Str("version", result.Version.Sequence.String()).
		Msg("clause accepted")

	payload := s.documentPayload(doc)
	payload["version"] = versionPayload(result.Version, false)
	payload["change"] = map[string]any{
		"clauseId":     result.Change.ClauseID,
		"originalText": result.Change.OriginalText,
		"newText":      result.Change.NewText,
	}
	return payload, nil
}

// RejectClause acknowledges the decision without persisting anything: the
// clause keeps its current text and no version is committed.
func (s *Service) RejectClause(ctx context.Context, documentID, clauseID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Reject(doc, clauseID)
	if err != nil {
		return nil, err
	}
	s.metrics.ClauseRejectsTotal.Inc()
	return map[string]any{
		"clauseId": result.ClauseID,
		"rejected": result.Rejected,
	}, nil
}

// ========== Versions ==========

func (s *Service) Versions(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	versions := doc.Versions.List()
	items := make([]map[string]any, 0, len(versions))
	// newest first
	for i := len(versions) - 1; i >= 0; i-- {
		items = append(items, versionPayload(versions[i], false))
	}
	return map[string]any{"versions": items}, nil
}

func (s *Service) Version(ctx context.Context, documentID, versionID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	version, err := doc.Versions.Get(versionID)
	if err != nil {
		return nil, err
	}
	return versionPayload(version, true), nil
}

// ArchiveHistory lists the document's git mirror commits.
func (s *Service) ArchiveHistory(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	if s.archive == nil {
		return map[string]any{"commits": []gitarchive.CommitInfo{}}, nil
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	commits, err := s.archive.History(documentID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"commits": commits}, nil
}

// ========== Export ==========

func (s *Service) ExportDocument(ctx context.Context, documentID string, format export.Format) (*export.Result, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(doc, format)
}

// ========== Search ==========

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(s.search.Backend()).Inc()
	return s.search.Search(q)
}

func (s *Service) indexDocument(doc *contract.Document) {
	if s.search == nil {
		return
	}
	record := search.DocumentRecord{
		ID:        doc.ID,
		Title:     doc.Title,
		Text:      doc.CurrentText,
		CreatedBy: doc.CreatedBy,
	}
	clauses := make([]search.ClauseRecord, 0, doc.Clauses.Len())
	for _, c := range doc.Clauses.List() {
		clauses = append(clauses, search.ClauseRecord{
			ID:          doc.ID + "_" + c.ID,
			ClauseID:    c.ID,
			DocumentID:  doc.ID,
			Title:       c.Title,
			CurrentText: c.CurrentText,
			RiskLevel:   string(c.Risk),
			Accepted:    c.Accepted,
		})
	}
	s.search.IndexDocument(record, clauses)
}

// ========== payloads ==========

func (s *Service) documentPayload(doc *contract.Document) map[string]any {
	clauses := make([]map[string]any, 0, doc.Clauses.Len())
	for _, c := range doc.Clauses.List() {
		clauses = append(clauses, clausePayload(c))
	}

	payload := map[string]any{
		"id":          doc.ID,
		"title":       doc.Title,
		"currentText": doc.CurrentText,
		"createdBy":   doc.CreatedBy,
		"createdAt":   doc.CreatedAt,
		"updatedAt":   doc.UpdatedAt,
		"clauses":     clauses,
	}
	if doc.SourceObject != "" {
		payload["sourceObject"] = doc.SourceObject
	}
	if current, err := doc.Versions.Current(); err == nil {
		payload["currentVersion"] = versionPayload(current, false)
	}
	return payload
}

func clausePayload(c *clause.Clause) map[string]any {
	return map[string]any{
		"id":               c.ID,
		"title":            c.Title,
		"riskLevel":        string(c.Risk),
		"originalText":     c.OriginalText,
		"currentText":      c.CurrentText,
		"saferAlternative": c.SaferAlternative,
		"confidence":       c.Confidence,
		"explanation":      c.Explanation,
		"accepted":         c.Accepted,
		"degraded":         c.Degraded,
	}
}

func versionPayload(v *ledger.Version, includeSnapshot bool) map[string]any {
	payload := map[string]any{
		"id":                v.ID,
		"sequence":          v.Sequence.String(),
		"status":            string(v.Status),
		"author":            v.Author,
		"changeDescription": v.ChangeDescription,
		"timestamp":         v.Timestamp,
	}
	if v.Change != nil {
		payload["change"] = map[string]any{
			"clauseId":     v.Change.ClauseID,
			"originalText": v.Change.OriginalText,
			"newText":      v.Change.NewText,
		}
	}
	if includeSnapshot {
		payload["snapshot"] = v.Snapshot
	}
	return payload
}

func warningPayload(warnings []clause.Warning) []map[string]any {
	items := make([]map[string]any, 0, len(warnings))
	for _, w := range warnings {
		items = append(items, map[string]any{
			"clauseId": w.ClauseID,
			"message":  w.Message,
		})
	}
	return items
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func sanitizeObjectName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "source"
	}
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
