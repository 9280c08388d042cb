package service

// Broadcaster pushes session updates to the tab's live connections (avoids import cycle)
type Broadcaster interface {
	BroadcastToTab(tabID string, msgType string, payload interface{})
	DisconnectTab(tabID string)
}
