package archivefs

import (
	"net/url"
	"strconv"
	"strings"
)

// MountSpec is the opaque key/value bag a mount is described by — kept a
// thin wrapper over map[string]string rather than a fixed struct, the
// same way gvfs's own mount spec stays a generic key/value dictionary
// even though only a handful of keys are meaningful to any one backend.
type MountSpec map[string]string

// HostPath returns the backing file path, resolving whichever of "host"
// (URI-escaped) or "file" (raw) the spec carries. Exactly one of the two
// must be present.
func (m MountSpec) HostPath() (string, error) {
	host, hasHost := m["host"]
	file, hasFile := m["file"]
	switch {
	case hasHost == hasFile:
		return "", newErr(ErrInvalidArgument, "mount", "", nil)
	case hasHost:
		decoded, err := url.PathUnescape(host)
		if err != nil {
			return "", newErr(ErrInvalidArgument, "mount", host, err)
		}
		return decoded, nil
	default:
		return file, nil
	}
}

// Create reports whether the "create" key is present (any value at all
// means "create a new archive"), and if so requires "format" to also be
// set.
func (m MountSpec) Create() (create bool, format FormatCode, err error) {
	if _, ok := m["create"]; !ok {
		return false, 0, nil
	}
	formatStr, ok := m["format"]
	if !ok {
		return false, 0, newErr(ErrInvalidArgument, "mount", "", nil)
	}
	f, convErr := strconv.Atoi(formatStr)
	if convErr != nil {
		return false, 0, newErr(ErrInvalidArgument, "mount", formatStr, convErr)
	}
	return true, FormatCode(f), nil
}

// Filters parses the "filters" key: a comma-separated, ordered list of
// decimal filter codes, applied outermost-first the way libarchive
// applies its own filter chain. An absent key means no filters.
func (m MountSpec) Filters() ([]FilterCode, error) {
	raw, ok := m["filters"]
	if !ok || raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	codes := make([]FilterCode, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, newErr(ErrInvalidArgument, "mount", raw, err)
		}
		codes = append(codes, FilterCode(n))
	}
	return codes, nil
}
