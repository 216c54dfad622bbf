package archivefs

// OverwriteFlags governs whether a mutation that would replace an
// existing destination entry is allowed to proceed — move's and push's
// "flags"/"copy_flags" parameter.
type OverwriteFlags uint32

const (
	OverwriteNone    OverwriteFlags = 0
	OverwriteAllowed OverwriteFlags = 1 << 0
)

// Has reports whether o is set in flags.
func (flags OverwriteFlags) Has(o OverwriteFlags) bool {
	return flags&o != 0
}
