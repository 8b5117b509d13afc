package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"clauseguard/api/internal/analysis"
	"clauseguard/api/internal/authpw"
	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/config"
	"clauseguard/api/internal/contract"
	"clauseguard/api/internal/gitarchive"
	"clauseguard/api/internal/ledger"
	"clauseguard/api/internal/revision"
	"clauseguard/api/internal/search"
	"clauseguard/api/internal/store"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	documents map[string]*contract.Document
	users     map[string]store.User
	revoked   map[string]bool
	sessions  map[string]store.User

	insertDocumentFn func(context.Context, *contract.Document) error
	saveAcceptanceFn func(context.Context, *contract.Document, *clause.Clause, *ledger.Version) error

	acceptancesSaved int
	commitHashes     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents:    make(map[string]*contract.Document),
		users:        make(map[string]store.User),
		revoked:      make(map[string]bool),
		sessions:     make(map[string]store.User),
		commitHashes: make(map[string]string),
	}
}

func (f *fakeStore) EnsureUserByName(_ context.Context, name string) (store.User, error) {
	if user, ok := f.users[name]; ok {
		return user, nil
	}
	user := store.User{ID: "usr_" + name, DisplayName: name, Role: "editor"}
	f.users[name] = user
	return user, nil
}

func (f *fakeStore) SetUserPassword(_ context.Context, userID, passwordHash string) error {
	for name, user := range f.users {
		if user.ID == userID {
			user.PasswordHash = passwordHash
			f.users[name] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, errors.New("user not found")
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	for _, user := range f.users {
		if user.ID == userID {
			f.sessions[tokenHash] = user
			return nil
		}
	}
	return errors.New("unknown user")
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	user, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, errors.New("session not found")
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc *contract.Document) error {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, doc)
	}
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*contract.Document, error) {
	doc, ok := f.documents[id]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(_ context.Context) ([]store.DocumentSummary, error) {
	items := make([]store.DocumentSummary, 0, len(f.documents))
	for _, doc := range f.documents {
		items = append(items, store.DocumentSummary{ID: doc.ID, Title: doc.Title})
	}
	return items, nil
}

func (f *fakeStore) SaveAcceptance(ctx context.Context, doc *contract.Document, cl *clause.Clause, v *ledger.Version) error {
	if f.saveAcceptanceFn != nil {
		return f.saveAcceptanceFn(ctx, doc, cl, v)
	}
	f.acceptancesSaved++
	return nil
}

func (f *fakeStore) SetVersionCommitHash(_ context.Context, versionID, hash string) error {
	f.commitHashes[versionID] = hash
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeAnalyzer struct {
	results []clause.Raw
	err     error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) ([]clause.Raw, error) {
	return f.results, f.err
}

type fakeArchive struct {
	commits []string
}

func (f *fakeArchive) Init(documentID, snapshot, author, message string) (gitarchive.CommitInfo, error) {
	f.commits = append(f.commits, message)
	return gitarchive.CommitInfo{Hash: "seed123"}, nil
}

func (f *fakeArchive) CommitVersion(documentID, snapshot, author, message string) (gitarchive.CommitInfo, error) {
	f.commits = append(f.commits, message)
	return gitarchive.CommitInfo{Hash: "rev456"}, nil
}

func (f *fakeArchive) History(string, int) ([]gitarchive.CommitInfo, error) {
	return nil, nil
}

func (f *fakeArchive) SnapshotByHash(string, string) (string, error) {
	return "", nil
}

type fakeSearch struct {
	indexed int
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexDocument(search.DocumentRecord, []search.ClauseRecord) {
	f.indexed++
}

func (f *fakeSearch) Backend() string { return "fake" }

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	}
}

func testRaws() []clause.Raw {
	safer := "Either party may terminate with 30 days written notice."
	return []clause.Raw{
		{
			Text:             "Either party may terminate at will.",
			Label:            "Termination",
			RiskLevel:        "High",
			Confidence:       0.91,
			SaferAlternative: &safer,
		},
		{
			Text:       "Governing law is the State of Delaware.",
			Label:      "Governing Law",
			RiskLevel:  "Low",
			Confidence: 0.55,
		},
	}
}

func newTestService(fs *fakeStore, an analyzer, ar archiveService, se searchService) *Service {
	return New(testConfig(), Options{
		Store:    fs,
		Sessions: fs,
		Analysis: an,
		Archive:  ar,
		Search:   se,
		Log:      zerolog.Nop(),
	})
}

func TestLoginAndSessionRoundTrip(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{}, nil, nil)

	session, err := svc.Login(context.Background(), "Avery", "")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if session.Role != "editor" {
		t.Fatalf("unexpected role %q", session.Role)
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserName != "Avery" {
		t.Fatalf("unexpected user %q", parsed.UserName)
	}
}

func TestLoginPasswordClaimAndVerify(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{}, nil, nil)

	// first login with a password claims the name
	if _, err := svc.Login(context.Background(), "Avery", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if fs.users["Avery"].PasswordHash == "" {
		t.Fatal("expected stored password hash after first login")
	}

	if _, err := svc.Login(context.Background(), "Avery", "hunter2"); err != nil {
		t.Fatalf("Login() with correct password error = %v", err)
	}

	_, err := svc.Login(context.Background(), "Avery", "wrong")
	if !errors.Is(err, authpw.ErrInvalidCredentials) {
		t.Fatalf("Login() with wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{}, nil, nil)

	first, err := svc.Login(context.Background(), "Avery", "")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}

	// old refresh token is single-use
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected error reusing revoked refresh token")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{}, nil, nil)

	session, err := svc.Login(context.Background(), "Avery", "")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}

func TestCreateDocumentIntake(t *testing.T) {
	fs := newFakeStore()
	archive := &fakeArchive{}
	searcher := &fakeSearch{}
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, archive, searcher)

	text := "Either party may terminate at will. Governing law is the State of Delaware."
	payload, err := svc.CreateDocument(context.Background(), "MSA", text, "Avery", nil, "")
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	clauses, ok := payload["clauses"].([]map[string]any)
	if !ok || len(clauses) != 2 {
		t.Fatalf("expected 2 clauses in payload, got %v", payload["clauses"])
	}
	if clauses[0]["id"] != "clause-1" {
		t.Fatalf("unexpected first clause id %v", clauses[0]["id"])
	}

	current, ok := payload["currentVersion"].(map[string]any)
	if !ok || current["sequence"] != "1.0" {
		t.Fatalf("expected seed version 1.0, got %v", payload["currentVersion"])
	}

	if len(fs.documents) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(fs.documents))
	}
	if len(archive.commits) != 1 {
		t.Fatalf("expected seed archive commit, got %d", len(archive.commits))
	}
	if searcher.indexed != 1 {
		t.Fatalf("expected search indexing, got %d", searcher.indexed)
	}
	if warnings, ok := payload["warnings"].([]map[string]any); !ok || len(warnings) != 0 {
		t.Fatalf("expected empty warnings, got %v", payload["warnings"])
	}
}

func TestCreateDocumentAnalysisUnavailable(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{err: analysis.ErrUnavailable}, nil, nil)

	_, err := svc.CreateDocument(context.Background(), "MSA", "some text", "Avery", nil, "")
	if !errors.Is(err, analysis.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(fs.documents) != 0 {
		t.Fatal("no document should be stored when analysis fails")
	}
}

func TestCreateDocumentRequiresText(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{}, nil, nil)

	_, err := svc.CreateDocument(context.Background(), "MSA", "   ", "Avery", nil, "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func createTestDocument(t *testing.T, svc *Service, fs *fakeStore) string {
	t.Helper()
	text := "Either party may terminate at will. Governing law is the State of Delaware."
	payload, err := svc.CreateDocument(context.Background(), "MSA", text, "Avery", nil, "")
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return payload["id"].(string)
}

func TestAcceptClausePersistsAndArchives(t *testing.T) {
	fs := newFakeStore()
	archive := &fakeArchive{}
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, archive, nil)
	docID := createTestDocument(t, svc, fs)

	payload, err := svc.AcceptClause(context.Background(), docID, "clause-1", "Avery", "")
	if err != nil {
		t.Fatalf("AcceptClause() error = %v", err)
	}

	version := payload["version"].(map[string]any)
	if version["sequence"] != "1.1" {
		t.Fatalf("expected version 1.1, got %v", version["sequence"])
	}
	if fs.acceptancesSaved != 1 {
		t.Fatalf("expected 1 persisted acceptance, got %d", fs.acceptancesSaved)
	}
	if len(archive.commits) != 2 {
		t.Fatalf("expected seed + revision archive commits, got %d", len(archive.commits))
	}

	doc := fs.documents[docID]
	if doc.CurrentText != "Either party may terminate with 30 days written notice. Governing law is the State of Delaware." {
		t.Fatalf("unexpected document text: %q", doc.CurrentText)
	}
}

func TestAcceptClauseIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, nil, nil)
	docID := createTestDocument(t, svc, fs)

	if _, err := svc.AcceptClause(context.Background(), docID, "clause-1", "Avery", ""); err != nil {
		t.Fatalf("first AcceptClause() error = %v", err)
	}
	payload, err := svc.AcceptClause(context.Background(), docID, "clause-1", "Avery", "")
	if err != nil {
		t.Fatalf("second AcceptClause() error = %v", err)
	}
	if payload["noop"] != true {
		t.Fatal("expected noop on repeat accept")
	}
	if fs.acceptancesSaved != 1 {
		t.Fatalf("repeat accept must not persist, saved=%d", fs.acceptancesSaved)
	}
	if fs.documents[docID].Versions.Len() != 2 {
		t.Fatalf("expected 2 versions, got %d", fs.documents[docID].Versions.Len())
	}
}

func TestAcceptClauseConflict(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, nil, nil)
	docID := createTestDocument(t, svc, fs)

	if _, err := svc.AcceptClause(context.Background(), docID, "clause-1", "Avery", "1.0"); err != nil {
		t.Fatalf("AcceptClause() with matching expected version error = %v", err)
	}

	// ledger moved to 1.1; a stale expectation must conflict
	_, err := svc.AcceptClause(context.Background(), docID, "clause-2", "Avery", "1.0")
	if !errors.Is(err, revision.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAcceptClauseNoSaferAlternative(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, nil, nil)
	docID := createTestDocument(t, svc, fs)

	_, err := svc.AcceptClause(context.Background(), docID, "clause-2", "Avery", "")
	if !errors.Is(err, revision.ErrNoSaferAlternative) {
		t.Fatalf("expected ErrNoSaferAlternative, got %v", err)
	}
}

func TestRejectClauseIsTransient(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, nil, nil)
	docID := createTestDocument(t, svc, fs)

	payload, err := svc.RejectClause(context.Background(), docID, "clause-1")
	if err != nil {
		t.Fatalf("RejectClause() error = %v", err)
	}
	if payload["rejected"] != true || payload["clauseId"] != "clause-1" {
		t.Fatalf("unexpected reject payload: %v", payload)
	}

	doc := fs.documents[docID]
	if doc.Versions.Len() != 1 {
		t.Fatalf("reject must not commit a version, got %d", doc.Versions.Len())
	}
	c, _ := doc.Clauses.Get("clause-1")
	if c.Accepted || c.CurrentText != c.OriginalText {
		t.Fatal("reject must not mutate the clause")
	}
}

func TestVersionsNewestFirst(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeAnalyzer{results: testRaws()}, nil, nil)
	docID := createTestDocument(t, svc, fs)

	if _, err := svc.AcceptClause(context.Background(), docID, "clause-1", "Avery", ""); err != nil {
		t.Fatalf("AcceptClause() error = %v", err)
	}

	payload, err := svc.Versions(context.Background(), docID)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	versions := payload["versions"].([]map[string]any)
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0]["sequence"] != "1.1" || versions[0]["status"] != "current" {
		t.Fatalf("expected newest current version first, got %v", versions[0])
	}
	if versions[1]["status"] != "archived" {
		t.Fatalf("expected archived seed version, got %v", versions[1])
	}
}
