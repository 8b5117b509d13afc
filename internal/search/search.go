package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultClause   ResultType = "clause"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
	RiskLevel  string     `json:"riskLevel,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterRisk       string     // clause risk level, empty = all
	FilterDocumentID string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDocument(doc DocumentRecord) error
	IndexClauses(clauses []ClauseRecord) error
	DeleteDocument(id string) error
}

// DocumentRecord is the data we index for a contract document.
type DocumentRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	CreatedBy string `json:"createdBy"`
}

// ClauseRecord is the data we index for an extracted clause. The ID is
// prefixed with the document id because clause ids only identify a clause
// within one document.
type ClauseRecord struct {
	ID          string `json:"id"`
	ClauseID    string `json:"clauseId"`
	DocumentID  string `json:"documentId"`
	Title       string `json:"title"`
	CurrentText string `json:"currentText"`
	RiskLevel   string `json:"riskLevel"`
	Accepted    bool   `json:"accepted"`
}
