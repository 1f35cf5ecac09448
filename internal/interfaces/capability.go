package interfaces

// CapabilityGate answers whether the current user may invoke a named command.
// It is resolved before any job-control call and never blocks.
type CapabilityGate interface {
	HasCapability(name string) bool
}
