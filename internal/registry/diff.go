package registry

import (
	"fmt"
	"reflect"
)

// Document is the part of a record that path-diffing walks: the three
// named top-level sections (§4.2) plus their one level of nested keys.
type Document struct {
	Metadata map[string]any
	Spec     map[string]any
	Status   map[string]any
}

// DiffPaths compares prior and next at the top two levels and returns
// the set of changed paths (e.g. ".metadata", ".spec.credentials",
// ".status.connection"). A wholesale change to a top-level section with
// no comparable substructure (metadata) is reported as ".metadata"
// itself; an entirely empty diff still yields a single "." entry so
// creation/deletion of a record is never silently unobserved.
func DiffPaths(prior, next Document) []string {
	var paths []string

	if !reflect.DeepEqual(prior.Metadata, next.Metadata) {
		paths = append(paths, ".metadata")
	}
	paths = append(paths, diffSection("spec", prior.Spec, next.Spec)...)
	paths = append(paths, diffSection("status", prior.Status, next.Status)...)

	if len(paths) == 0 {
		return []string{"."}
	}
	return paths
}

func diffSection(name string, prior, next map[string]any) []string {
	var paths []string
	seen := make(map[string]struct{}, len(prior)+len(next))

	for k, v := range next {
		seen[k] = struct{}{}
		if pv, ok := prior[k]; !ok || !reflect.DeepEqual(pv, v) {
			paths = append(paths, fmt.Sprintf(".%s.%s", name, k))
		}
	}
	for k := range prior {
		if _, ok := seen[k]; ok {
			continue
		}
		paths = append(paths, fmt.Sprintf(".%s.%s", name, k))
	}
	return paths
}
