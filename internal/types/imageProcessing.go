package types

// WarmRequest asks the warm worker to generate a variant ahead of traffic.
type WarmRequest struct {
	Id        string `json:"id"`
	Path      string `json:"path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt string `json:"createdAt"`
}

// WarmMessage is the envelope consumed from the warm queue.
type WarmMessage struct {
	Pattern string      `json:"pattern"`
	Data    WarmRequest `json:"data"`
}
