// Package pathtrans maps paths between the local device's filesystem
// namespace and the workstation's namespace so that a feature's workspace
// path, recorded by whichever side created it, can be resolved by either.
package pathtrans

import "strings"

// Translator holds the two configured base paths. The zero value is a
// passthrough translator: every operation is the identity function.
type Translator struct {
	// Local is the base path on the device running the front-end.
	Local string
	// Workstation is the base path on the machine that owns the repositories.
	Workstation string
}

// New builds a Translator from the two base paths, stripping any trailing
// slash so prefix comparisons are exact.
func New(local, workstation string) Translator {
	return Translator{
		Local:       strings.TrimRight(local, "/"),
		Workstation: strings.TrimRight(workstation, "/"),
	}
}

// passthrough reports whether either base is unset or both are identical, in which
// case every translation is the identity.
func (t Translator) passthrough() bool {
	return t.Local == "" || t.Workstation == "" || t.Local == t.Workstation
}

// ToWorkstation rewrites a local-namespace path into the workstation
// namespace. Paths that do not begin with the local base are returned
// unchanged.
func (t Translator) ToWorkstation(p string) string {
	if t.passthrough() {
		return p
	}
	if rest, ok := strings.CutPrefix(p, t.Local); ok {
		return t.Workstation + rest
	}
	return p
}

// ToLocal is the symmetric inverse of ToWorkstation.
func (t Translator) ToLocal(p string) string {
	if t.passthrough() {
		return p
	}
	if rest, ok := strings.CutPrefix(p, t.Workstation); ok {
		return t.Local + rest
	}
	return p
}

// ToRelative strips whichever configured base is a prefix of p. If neither
// base matches, p is returned unchanged.
func (t Translator) ToRelative(p string) string {
	if rest, ok := strings.CutPrefix(p, t.Local); ok && t.Local != "" {
		return strings.TrimPrefix(rest, "/")
	}
	if rest, ok := strings.CutPrefix(p, t.Workstation); ok && t.Workstation != "" {
		return strings.TrimPrefix(rest, "/")
	}
	return p
}

// ResolveForLocal resolves p for use on the local device: an absolute path
// in the workstation namespace is translated, an absolute path already in
// the local namespace (or passthrough mode) is returned unchanged, and a
// relative path is joined onto the local base.
func (t Translator) ResolveForLocal(p string) string {
	return t.resolveFor(p, t.Local, t.ToLocal)
}

// ResolveForWorkstation is the symmetric counterpart of ResolveForLocal.
func (t Translator) ResolveForWorkstation(p string) string {
	return t.resolveFor(p, t.Workstation, t.ToWorkstation)
}

func (t Translator) resolveFor(p, base string, translate func(string) string) string {
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "/") {
		return translate(p)
	}
	if base == "" {
		return p
	}
	return strings.TrimRight(base, "/") + "/" + p
}
