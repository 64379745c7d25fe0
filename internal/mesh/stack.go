package mesh

import "github.com/google/uuid"

// Provisioner issues the provisioning requests of the mesh stack.
//
// Every method reports only a failure to issue the request. The protocol
// result arrives later as an event.
type Provisioner interface {
	// CreateProvisioningSession opens a provisioning session for the device.
	CreateProvisioningSession(id uuid.UUID) error

	// ProvisionAdvDevice starts provisioning over PB-ADV.
	ProvisionAdvDevice(id uuid.UUID) error

	// AddAppKey pushes the application key to a freshly provisioned node.
	AddAppKey(addr Address, appKeyIndex, netKeyIndex uint16) error
}

// ConfigClient issues configuration client requests against a provisioned node.
type ConfigClient interface {
	// GetComposition requests a composition data page.
	GetComposition(addr Address, page uint8) error

	BindModel(req BindRequest) error
	SetPublication(req PublicationRequest) error
	AddSubscription(req SubscriptionRequest) error

	// SetProxy enables or disables the GATT proxy feature.
	SetProxy(addr Address, enabled bool) error

	SetHeartbeatPublication(req HeartbeatRequest) error

	// DeleteProvisioningEntry drops the device from the provisioner's
	// database so it can be provisioned again from scratch.
	DeleteProvisioningEntry(id uuid.UUID) error
}

// Stack is the full request surface of the mesh stack.
type Stack interface {
	Provisioner
	ConfigClient
}
