package mesh

import "github.com/google/uuid"

// BindRequest binds an application key to one model on one element.
type BindRequest struct {
	Address     Address `json:"address"`
	Element     uint8   `json:"element"`
	VendorID    uint16  `json:"vendor_id"`
	Model       ModelID `json:"model_id"`
	AppKeyIndex uint16  `json:"appkey_index"`
	NetKeyIndex uint16  `json:"netkey_index"`
}

// PublicationRequest sets a model's publication address and parameters.
type PublicationRequest struct {
	Address              Address `json:"address"`
	Element              uint8   `json:"element"`
	VendorID             uint16  `json:"vendor_id"`
	Model                ModelID `json:"model_id"`
	Group                Address `json:"group"`
	AppKeyIndex          uint16  `json:"appkey_index"`
	NetKeyIndex          uint16  `json:"netkey_index"`
	FriendCredentials    bool    `json:"friend_credentials"`
	TTL                  uint8   `json:"ttl"`
	Period               uint8   `json:"period"`
	RetransmitCount      uint8   `json:"retransmit_count"`
	RetransmitIntervalMS uint16  `json:"retransmit_interval_ms"`
}

// SubscriptionRequest adds a group to a model's subscription list.
type SubscriptionRequest struct {
	Address     Address `json:"address"`
	Element     uint8   `json:"element"`
	VendorID    uint16  `json:"vendor_id"`
	Model       ModelID `json:"model_id"`
	Group       Address `json:"group"`
	NetKeyIndex uint16  `json:"netkey_index"`
}

// HeartbeatRequest configures heartbeat publication on a node.
type HeartbeatRequest struct {
	Address     Address `json:"address"`
	Destination Address `json:"destination"`
	NetKeyIndex uint16  `json:"netkey_index"`
	Count       uint8   `json:"count"`
	PeriodLog   uint8   `json:"period_log"`
	TTL         uint8   `json:"ttl"`
	Features    uint16  `json:"features"`
}

// Beacon is an unprovisioned device beacon reported by the stack.
type Beacon struct {
	UUID        uuid.UUID   `json:"uuid"`
	LinkAddress LinkAddress `json:"link_address"`
	Bearer      Bearer      `json:"bearer"`

	// Known is set when the stack already holds a provisioning database
	// entry for the UUID.
	Known bool `json:"known,omitempty"`
}
