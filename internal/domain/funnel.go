package domain

// FunnelCounts are raw stage counts over campaigns created within a window.
type FunnelCounts struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
	Clicked   int `json:"clicked"`
	Replied   int `json:"replied"`
	Booked    int `json:"booked"`
	Bounced   int `json:"bounced"`
}

// BlocklistFilter controls pagination and filtering for blocklist listings.
type BlocklistFilter struct {
	Reason BlockReason
	Search string
	Limit  int
	Offset int
}
