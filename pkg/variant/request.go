package variant

// RegenerateRequest asks the worker to rebuild variants for one asset.
type RegenerateRequest struct {
	AssetID string `json:"asset_id"`
	Job     string `json:"job"`
	Specs   []Spec `json:"specs"`
}

// RegenerateResponse is returned when a regeneration run is enqueued.
type RegenerateResponse struct {
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// Job type constants.
const (
	JobRegenerate = "regenerate"
)
