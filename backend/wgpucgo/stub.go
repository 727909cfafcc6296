//go:build !wgpucgo

package wgpucgo

import (
	"fmt"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
)

func init() {
	backend.Register(backend.BackendCGO, func() (gpucore.Adapter, error) {
		return nil, fmt.Errorf("%w: built without the wgpucgo tag", backend.ErrBackendNotAvailable)
	})
}
