package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// StorageClass selects how shaders see a buffer.
type StorageClass uint8

const (
	// StorageClassStorage is general read/write storage.
	StorageClassStorage StorageClass = iota

	// StorageClassUniform is small read-mostly data. Uniform buffers also
	// carry the storage flag, so a later pipeline stage may bind them as
	// storage.
	StorageClassUniform
)

// String returns the string representation of StorageClass.
func (s StorageClass) String() string {
	switch s {
	case StorageClassStorage:
		return "Storage"
	case StorageClassUniform:
		return "Uniform"
	default:
		return fmt.Sprintf("StorageClass(%d)", uint8(s))
	}
}

// Usage returns the usage flags implied by the storage class.
func (s StorageClass) Usage() gputypes.BufferUsage {
	if s == StorageClassUniform {
		return gputypes.BufferUsageUniform | gputypes.BufferUsageStorage
	}
	return gputypes.BufferUsageStorage
}

// Access is the host's access direction to a buffer's contents.
type Access uint8

const (
	// AccessHostWrite is host-seeded data that is only copied out of the device buffer.
	AccessHostWrite Access = iota

	// AccessHostRead is data the host reads back.
	AccessHostRead

	// AccessHostReadWrite is data the host both seeds and reads back.
	AccessHostReadWrite
)

// String returns the string representation of Access.
func (a Access) String() string {
	switch a {
	case AccessHostWrite:
		return "HostWrite"
	case AccessHostRead:
		return "HostRead"
	case AccessHostReadWrite:
		return "HostReadWrite"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Usage returns the copy flags implied by the access direction.
// HostRead and HostReadWrite grant the same flags.
func (a Access) Usage() gputypes.BufferUsage {
	if a == AccessHostWrite {
		return gputypes.BufferUsageCopySrc
	}
	return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
}

// Policy combines a storage class and an access direction.
type Policy struct {
	Class  StorageClass
	Access Access
}

// Common policies.
var (
	// StorageHostWrite is host-seeded shader input.
	StorageHostWrite = Policy{Class: StorageClassStorage, Access: AccessHostWrite}

	// StorageHostReadWrite is shader output that is read back.
	StorageHostReadWrite = Policy{Class: StorageClassStorage, Access: AccessHostReadWrite}

	// UniformHostWrite is host-seeded uniform data.
	UniformHostWrite = Policy{Class: StorageClassUniform, Access: AccessHostWrite}
)

// Usage returns the device buffer usage flags for p.
func (p Policy) Usage() gputypes.BufferUsage {
	return p.Class.Usage() | p.Access.Usage()
}

// String returns a short description of p.
func (p Policy) String() string {
	return p.Class.String() + "/" + p.Access.String()
}

// stagingUsage is the usage of every host staging buffer.
var stagingUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
