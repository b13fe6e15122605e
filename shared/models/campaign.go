package models

// CampaignRequest - запрос на рассылку (POST /email/send или авто-уведомление о новости).
type CampaignRequest struct {
	NewsID      string   `json:"newsId,omitempty"`
	PlatformIDs []string `json:"platformIds,omitempty"`
	SendToAll   *bool    `json:"sendToAll,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	HTML        string   `json:"html,omitempty"`
	// Reason заполняется для авто-уведомлений, например "news-published".
	Reason string `json:"reason,omitempty"`
}

// CampaignResult - итог рассылки.
type CampaignResult struct {
	OK        bool     `json:"ok"`
	Campaigns []string `json:"campaigns"`
	Total     int      `json:"total"`
	Message   string   `json:"message"`
}
