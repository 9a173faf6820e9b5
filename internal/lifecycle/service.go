package lifecycle

import (
	core "github.com/bridgelab/reportpipeline/internal/core/service"
)

// DescriptorProvider optionally advertises a component's metadata (layer,
// capabilities) for the worker's self-description. cmd/pipelineworker
// collects every wired component's descriptor and hands the result to
// opsapi.NewServer, which echoes it on GET /healthz.
type DescriptorProvider interface {
	Descriptor() core.Descriptor
}
