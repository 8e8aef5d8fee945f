package realtime

import "encoding/json"

// Frame type discriminators shared with connected clients.
const (
	TypeConnectionEstablished = "connection_established"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeError                 = "error"
	TypeNotification          = "notification"
	TypeOrderUpdate           = "order_update"
	TypePaymentUpdate         = "payment_update"
	TypeTenantUpdate          = "tenant_update"
)

// Envelope is the JSON frame written to connected clients. Fan-out deliveries
// carry Data; control frames use Message/Timestamp/TenantID as applicable.
type Envelope struct {
	Type      string          `json:"type"`
	Data      any             `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
}

// UserGroup returns the group key carrying one user's notifications.
func UserGroup(userID string) string {
	return "user:" + userID
}

// TenantGroup returns the group key shared by all members of a tenant.
func TenantGroup(tenantID string) string {
	return "tenant:" + tenantID
}
