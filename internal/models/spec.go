package models

// NodeSpec describes a node to create. Endpoint is set for endpoint nodes
// and seeds their live state.
type NodeSpec struct {
	Name     string
	Type     string
	Endpoint *Endpoint
}

// DeviceSpec describes a device node registered under a network context.
type DeviceSpec struct {
	Name string
	Type string
}
