package service

// Layer describes the architectural slice a component belongs to: job
// intake, the stage engine itself, external collaborators (classifier/LLM),
// or operational tooling (archive, reaper, health surface).
type Layer string

const (
	LayerIngress  Layer = "ingress"
	LayerEngine   Layer = "engine"
	LayerExternal Layer = "external"
	LayerOps      Layer = "ops"
)

// Descriptor advertises a component's placement and capabilities. It does
// not change runtime behavior; it lets the worker process and its
// operational surface enumerate what is wired in without hard-coding a list.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
