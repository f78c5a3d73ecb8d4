package ftpclient

import "strings"

const schemePrefix = "ftp://"

// SplitHostAndPath splits "[ftp://]host[/path]" into the host and the
// absolute root path on that host. The root path always starts with "/";
// an address without a path maps to "/".
func SplitHostAndPath(address string) (host, rootPath string) {
	address = strings.TrimPrefix(address, schemePrefix)
	host, rest, found := strings.Cut(address, "/")
	if !found {
		return host, "/"
	}
	return host, "/" + rest
}

// remotePath normalizes the three accepted remote address forms into a
// path usable on the control channel: a scheme-prefixed address is
// reduced to its path component, everything else passes through (absolute
// paths as-is, relative ones resolve against the session's working
// directory).
func remotePath(remote string) string {
	if !strings.HasPrefix(remote, schemePrefix) {
		return remote
	}
	_, p := SplitHostAndPath(remote)
	return p
}
