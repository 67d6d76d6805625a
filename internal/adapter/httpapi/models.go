package httpapi

import "smartindex/internal/domain"

// SearchRequest is the body of POST /api/search. Omitted k and threshold
// fall back to the server defaults.
type SearchRequest struct {
	Query     string   `json:"query"`
	K         *int     `json:"k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type SearchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Took    int64                 `json:"took_ms"`
}

type UploadResponse struct {
	Outcome domain.FileOutcome `json:"outcome"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
