package types

// VariantData represents the inner payload
type VariantData struct {
	Key          string `json:"key"`
	OriginalPath string `json:"originalPath"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	Status       string `json:"status"`
	URL          string `json:"url,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// VariantMessage represents the full message envelope
type VariantMessage struct {
	Pattern string      `json:"pattern"`
	Data    VariantData `json:"data"`
}

const STORED = "STORED"
const WARMED = "WARMED"
const SKIPPED = "SKIPPED"
