package obs

import "strings"

// Collections whose element ids get collapsed in metric labels.
var idCollections = map[string]bool{
	"organizations": true,
	"projects":      true,
	"cost-lines":    true,
	"claims":        true,
	"milestones":    true,
	"documents":     true,
	"notifications": true,
}

// CanonicalPath collapses resource identifiers in request paths so the
// path label stays low-cardinality. /v1/projects/01ABC/submit becomes
// /v1/projects/:id/submit.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) >= 3 && segs[0] == "v1" && idCollections[segs[1]] {
		segs[2] = ":id"
	}
	return "/" + strings.Join(segs, "/")
}
