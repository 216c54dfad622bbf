// Package metacache implements the path-keyed metadata caches
// (InfoCache, EnumCache) that sit in front of a slow backing store.
package metacache

import "time"

// FileType enumerates the kinds of node a cached Info can describe.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymbolicLink
	TypeSpecial
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	case TypeSymbolicLink:
		return "symlink"
	case TypeSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// QueryFlags mirrors the small flag set a lookup is made under. The only
// flag that changes cache semantics today is NoFollowSymlinks.
type QueryFlags uint32

const (
	QueryFlagsNone            QueryFlags = 0
	QueryFlagNoFollowSymlinks QueryFlags = 1 << 0
)

// Has reports whether f is set in flags.
func (flags QueryFlags) Has(f QueryFlags) bool {
	return flags&f != 0
}

// Info is the per-file metadata record cached by InfoCache and stored in
// EnumCache's per-directory listings. It is intentionally a plain struct:
// the set of fields gvfs-style callers need (three timestamps with
// sub-second usec components, a symlink target, a handful of access
// booleans) doesn't line up with os.FileInfo, so there's no stdlib type
// to wrap.
type Info struct {
	name        string
	displayName string

	fileType      FileType
	size          int64
	symlinkTarget string

	accessTime  time.Time
	accessUsec  uint32
	changeTime  time.Time
	changeUsec  uint32
	modifyTime  time.Time
	modifyUsec  uint32

	inode uint64

	canRead    bool
	canWrite   bool
	canDelete  bool
	canRename  bool
	canTrash   bool
	canExecute bool

	// attrs records which attribute names this Info actually carries a
	// value for, so a matcher built against it can answer Subtract
	// queries precisely instead of assuming every field is populated.
	attrs map[string]struct{}
}

// NewInfo builds an Info for name/displayName of the given type.
func NewInfo(name, displayName string, fileType FileType) *Info {
	return &Info{
		name:        name,
		displayName: displayName,
		fileType:    fileType,
		attrs:       make(map[string]struct{}),
	}
}

func (i *Info) Name() string        { return i.name }
func (i *Info) DisplayName() string { return i.displayName }
func (i *Info) Type() FileType      { return i.fileType }
func (i *Info) Size() int64         { return i.size }
func (i *Info) IsSymlink() bool     { return i.fileType == TypeSymbolicLink }
func (i *Info) SymlinkTarget() string { return i.symlinkTarget }
func (i *Info) Inode() uint64       { return i.inode }

func (i *Info) AccessTime() (time.Time, uint32) { return i.accessTime, i.accessUsec }
func (i *Info) ChangeTime() (time.Time, uint32) { return i.changeTime, i.changeUsec }
func (i *Info) ModifyTime() (time.Time, uint32) { return i.modifyTime, i.modifyUsec }

func (i *Info) CanRead() bool    { return i.canRead }
func (i *Info) CanWrite() bool   { return i.canWrite }
func (i *Info) CanDelete() bool  { return i.canDelete }
func (i *Info) CanRename() bool  { return i.canRename }
func (i *Info) CanTrash() bool   { return i.canTrash }
func (i *Info) CanExecute() bool { return i.canExecute }

func (i *Info) SetSize(n int64)               { i.size = n; i.mark("standard::size") }
func (i *Info) SetSymlinkTarget(target string) {
	i.symlinkTarget = target
	i.mark("standard::symlink-target")
}
func (i *Info) SetInode(ino uint64) { i.inode = ino; i.mark("unix::inode") }

func (i *Info) SetAccessTime(t time.Time, usec uint32) {
	i.accessTime, i.accessUsec = t, usec
	i.mark("time::access")
}

func (i *Info) SetChangeTime(t time.Time, usec uint32) {
	i.changeTime, i.changeUsec = t, usec
	i.mark("time::changed")
}

func (i *Info) SetModifyTime(t time.Time, usec uint32) {
	i.modifyTime, i.modifyUsec = t, usec
	i.mark("time::modified")
}

func (i *Info) SetAccess(canRead, canWrite, canDelete, canRename, canTrash, canExecute bool) {
	i.canRead, i.canWrite, i.canDelete = canRead, canWrite, canDelete
	i.canRename, i.canTrash, i.canExecute = canRename, canTrash, canExecute
	i.mark("access::can-read", "access::can-write", "access::can-delete",
		"access::can-rename", "access::can-trash", "access::can-execute")
}

func (i *Info) mark(attrs ...string) {
	for _, a := range attrs {
		i.attrs[a] = struct{}{}
	}
}

// HasAttribute reports whether attr has ever been set on this Info.
func (i *Info) HasAttribute(attr string) bool {
	_, ok := i.attrs[attr]
	return ok
}

// Clone returns a deep-enough copy safe to hand to a second owner. The
// caches store Clone()s rather than the caller's own Info so that later
// mutation by the caller can't corrupt a cached entry.
func (i *Info) Clone() *Info {
	cp := *i
	cp.attrs = make(map[string]struct{}, len(i.attrs))
	for a := range i.attrs {
		cp.attrs[a] = struct{}{}
	}
	return &cp
}
