package archivefs

import (
	"time"

	"github.com/Krishna8167/archivefscache/metacache"
)

// infoFromHeader builds an Info from one archive entry's Header, the Go
// shape of archive_file_set_info_from_entry / archive_entry_set_info.
// writable is the backend's own writable flag: gvfs gives every entry
// the same read/write/delete/rename bits driven entirely by whether the
// mount as a whole is writable, never per-entry archive permissions;
// trash is always false since archives have no concept of it.
func infoFromHeader(name string, h *Header, inode uint64, writable bool) *metacache.Info {
	ft := metacache.TypeRegular
	switch h.Type {
	case EntryDirectory:
		ft = metacache.TypeDirectory
	case EntrySymlink:
		ft = metacache.TypeSymbolicLink
	case EntrySpecial:
		ft = metacache.TypeSpecial
	}

	info := metacache.NewInfo(name, name, ft)
	info.SetSize(h.Size)
	info.SetInode(inode)
	if h.Type == EntrySymlink {
		info.SetSymlinkTarget(h.Linkname)
	}

	info.SetAccessTime(timeOrNow(h.AccessTime), usecOf(h.AccessTime))
	info.SetChangeTime(timeOrNow(h.ChangeTime), usecOf(h.ChangeTime))
	info.SetModifyTime(timeOrNow(h.ModTime), usecOf(h.ModTime))

	info.SetAccess(
		true,                   // can_read: archives are always readable once mounted
		writable,                // can_write
		writable,                // can_delete
		writable,                // can_rename
		false,                   // can_trash: never supported for archive entries
		h.Mode&0o111 != 0,        // can_execute, from the entry's own mode bits
	)
	return info
}

// headerFromInfo is the inverse mapping. Backend runs a node's Info
// through it and back through infoFromHeader to rebuild that Info under
// a new name after a rename or move.
func headerFromInfo(name string, info *metacache.Info) *Header {
	typ := EntryRegular
	switch info.Type() {
	case metacache.TypeDirectory:
		typ = EntryDirectory
	case metacache.TypeSymbolicLink:
		typ = EntrySymlink
	case metacache.TypeSpecial:
		typ = EntrySpecial
	}

	modTime, modUsec := info.ModifyTime()
	h := &Header{
		Name:     name,
		Size:     info.Size(),
		Type:     typ,
		Linkname: info.SymlinkTarget(),
		ModTime:  timeFromUsec(modTime, modUsec),
	}
	if info.CanExecute() {
		h.Mode = 0o755
	} else {
		h.Mode = 0o644
	}
	if typ == EntryDirectory {
		h.Mode |= 0o111
	}

	at, aUsec := info.AccessTime()
	h.AccessTime = timeFromUsec(at, aUsec)
	ct, cUsec := info.ChangeTime()
	h.ChangeTime = timeFromUsec(ct, cUsec)
	return h
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// usecOf extracts the sub-second component of t in microseconds — the
// mapping gvfs applies in both directions (Info stores usec, archive
// entry timestamps carry nsec, and usec*1000 == nsec).
func usecOf(t time.Time) uint32 {
	return uint32(t.Nanosecond() / 1000)
}

func timeFromUsec(t time.Time, usec uint32) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), int(usec)*1000, t.Location())
}
