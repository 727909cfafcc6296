//go:build !rust

package rust

import (
	"fmt"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
)

// init registers a factory that reports the backend as unavailable when the
// rust tag is not set, so backend.Default skips it.
func init() {
	backend.Register(backend.BackendRust, func() (gpucore.Adapter, error) {
		return nil, fmt.Errorf("%w: built without the rust tag", backend.ErrBackendNotAvailable)
	})
}
