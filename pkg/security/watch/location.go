package watch

import (
	"net/url"
	"path/filepath"
	"strings"
)

// StoreReference is a configured store location resolved to a filesystem path.
type StoreReference struct {
	// Kind is the store this reference belongs to
	Kind StoreKind

	// Location is the raw configured value
	Location string

	// Path is the absolute, cleaned filesystem path
	Path string

	// Dir is the directory containing Path
	Dir string

	// Name is the filename component of Path
	Name string
}

// ResolveLocation converts a configured store location into a StoreReference.
//
// An empty location returns nil and no error. Locations may be plain paths or
// file URIs ("file:///etc/certs/server.pem", "file:certs/server.pem"); any
// other scheme is rejected. Relative paths are resolved against the working
// directory. The function does not touch the filesystem beyond that.
func ResolveLocation(kind StoreKind, location string) (*StoreReference, error) {
	if location == "" {
		return nil, nil
	}

	path, err := stripScheme(location)
	if err != nil {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "cannot parse location", Cause: err}
	}
	if path == "" {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "location has no path"}
	}

	// A trailing separator names a directory, not a store file.
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "location has no filename"}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "cannot make path absolute", Cause: err}
	}

	dir, name := filepath.Split(abs)
	if name == "" || name == "." || name == ".." {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "location has no filename"}
	}
	if dir == "" {
		return nil, &LocationError{Kind: kind, Location: location, Reason: "location has no parent directory"}
	}

	return &StoreReference{
		Kind:     kind,
		Location: location,
		Path:     abs,
		Dir:      filepath.Clean(dir),
		Name:     name,
	}, nil
}

// stripScheme removes a file scheme prefix and returns the filesystem path.
func stripScheme(location string) (string, error) {
	if !hasScheme(location) {
		return location, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Scheme, "file") {
		return "", &url.Error{Op: "resolve", URL: location, Err: errUnsupportedScheme(u.Scheme)}
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", &url.Error{Op: "resolve", URL: location, Err: errRemoteHost(u.Host)}
	}

	// "file:relative/path" parses with an opaque part and no path.
	if u.Opaque != "" {
		return filepath.FromSlash(u.Opaque), nil
	}
	return filepath.FromSlash(u.Path), nil
}

// hasScheme reports whether location starts with "<scheme>:". Single letter
// schemes are treated as Windows drive letters.
func hasScheme(location string) bool {
	i := strings.Index(location, ":")
	if i < 2 {
		return false
	}
	for j, r := range location[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

type errUnsupportedScheme string

func (e errUnsupportedScheme) Error() string {
	return "unsupported scheme " + string(e) + " (only file is supported)"
}

type errRemoteHost string

func (e errRemoteHost) Error() string {
	return "remote host " + string(e) + " is not supported"
}
