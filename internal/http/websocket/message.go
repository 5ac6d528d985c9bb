package websocket

type socketMessageType int

const (
	Update socketMessageType = iota
	Welcome
)

// SocketMessage is the unit pushed to connected activity-feed clients.
// Title names the activity (e.g. the event which triggered the push)
// and Body carries the associated payload.
type SocketMessage struct {
	Title string                 `json:"title"`
	Body  map[string]interface{} `json:"arguments"`
	Type  socketMessageType      `json:"type"`
}
