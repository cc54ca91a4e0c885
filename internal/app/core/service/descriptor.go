// Package service describes lifecycle components for startup logging.
package service

// Layer places a component in the deployment.
type Layer string

const (
	// LayerPlatform marks components that serve API traffic.
	LayerPlatform Layer = "platform"
	// LayerMaintenance marks background housekeeping.
	LayerMaintenance Layer = "maintenance"
)

// Descriptor names a component and the capabilities it exposes.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy with caps appended. The receiver's slice is
// never shared with the result.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	d.Capabilities = append(combined, caps...)
	return d
}

// Fields renders the descriptor as structured log fields.
func (d Descriptor) Fields() map[string]interface{} {
	return map[string]interface{}{
		"component":    d.Name,
		"domain":       d.Domain,
		"layer":        string(d.Layer),
		"capabilities": d.Capabilities,
	}
}
