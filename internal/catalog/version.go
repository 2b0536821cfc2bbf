package catalog

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

// compareVersions implements spec.md §4.3's version-latest policy: parse as
// SemVer first; when a candidate isn't valid SemVer, fall back to
// component-wise numeric/lexical comparison; when that's still
// incomparable, fall back to raw lexical order. Returns <0, 0, >0 like
// strings.Compare.
func compareVersions(a, b string) int {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr == nil && berr == nil {
		return av.Compare(bv)
	}
	if c, ok := compareLooseVersions(a, b); ok {
		return c
	}
	return strings.Compare(a, b)
}

// compareLooseVersions compares dotted components, numeric where both sides
// parse as integers and lexical where neither does. Returns ok=false if the
// two strings have an incomparable shape (a component that is numeric on one
// side and non-numeric or missing on the other), signaling the caller to
// fall back to raw lexical order.
func compareLooseVersions(a, b string) (int, bool) {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var ac, bc string
		if i < len(as) {
			ac = as[i]
		}
		if i < len(bs) {
			bc = bs[i]
		}
		if ac == bc {
			continue
		}
		ai, aerr := strconv.Atoi(ac)
		bi, berr := strconv.Atoi(bc)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1, true
				}
				return 1, true
			}
			continue
		}
		if (aerr == nil) != (berr == nil) {
			return 0, false
		}
		if ac < bc {
			return -1, true
		}
		return 1, true
	}
	return 0, true
}

// pickLatest returns the "latest" package among candidates sharing a name,
// per spec.md §4.3: highest version by compareVersions; on an exact tie the
// candidate whose ID string sorts higher wins. ok is false when candidates
// is empty.
func pickLatest(candidates []Package) (Package, bool) {
	if len(candidates) == 0 {
		return Package{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		cmp := compareVersions(c.Version, best.Version)
		if cmp > 0 || (cmp == 0 && c.ID.String() > best.ID.String()) {
			best = c
		}
	}
	return best, true
}
