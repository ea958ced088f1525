package kind

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is an entity type exposed by the Clarity REST API.
type Kind struct {
	name      string
	class     string
	path      string
	batch     string
	linkElem  string
	hasLimsID bool
}

// Name returns the registry key (e.g. "sample").
func (k Kind) Name() string { return k.name }

// Class returns the short class name used in recording file names (e.g. "Sample").
func (k Kind) Class() string { return k.class }

// Path returns the URI path segment under /api/v2 (e.g. "samples").
func (k Kind) Path() string { return k.path }

// Batch returns the name of the list document for this kind (e.g. "Samples").
func (k Kind) Batch() string { return k.batch }

// LinkElement returns the element name of a link inside a list document.
func (k Kind) LinkElement() string { return k.linkElem }

// HasLimsID reports whether entities of this kind carry a limsid attribute.
// Kinds without one are identified by the last segment of their URI.
func (k Kind) HasLimsID() bool { return k.hasLimsID }

// IsZero reports whether k is the zero Kind.
func (k Kind) IsZero() bool { return k.name == "" }

func (k Kind) String() string { return k.name }

// Registered kinds.
var (
	Sample        = Kind{"sample", "Sample", "samples", "Samples", "sample", true}
	Artifact      = Kind{"artifact", "Artifact", "artifacts", "Artifacts", "artifact", true}
	Container     = Kind{"container", "Container", "containers", "Containers", "container", true}
	ContainerType = Kind{"containertype", "ContainerType", "containertypes", "ContainerTypes", "container-type", false}
	Project       = Kind{"project", "Project", "projects", "Projects", "project", true}
	Researcher    = Kind{"researcher", "Researcher", "researchers", "Researchers", "researcher", false}
	Lab           = Kind{"lab", "Lab", "labs", "Labs", "lab", false}
	Process       = Kind{"process", "ClarityProcess", "processes", "Processes", "process", true}
	ReagentType   = Kind{"reagenttype", "ReagentType", "reagenttypes", "ReagentTypes", "reagent-type", false}
	Role          = Kind{"role", "Role", "roles", "Roles", "role", false}
	Permission    = Kind{"permission", "Permission", "permissions", "Permissions", "permission", false}
	File          = Kind{"file", "ClarityFile", "files", "Files", "file", true}
	Instrument    = Kind{"instrument", "Instrument", "instruments", "Instruments", "instrument", true}
	ProcessType   = Kind{"processtype", "ProcessType", "processtypes", "ProcessTypes", "process-type", false}
)

var registry = map[string]Kind{}

func init() {
	for _, k := range []Kind{
		Sample, Artifact, Container, ContainerType, Project, Researcher, Lab,
		Process, ReagentType, Role, Permission, File, Instrument, ProcessType,
	} {
		registry[k.name] = k
	}
}

// Lookup finds a kind by registry name, class name, path segment or batch
// name (case-insensitive).
func Lookup(s string) (Kind, bool) {
	s = strings.ToLower(s)
	if k, ok := registry[s]; ok {
		return k, true
	}
	for _, k := range registry {
		if strings.ToLower(k.class) == s || k.path == s || strings.ToLower(k.batch) == s {
			return k, true
		}
	}
	return Kind{}, false
}

// Parse is Lookup returning an error for unknown names.
func Parse(s string) (Kind, error) {
	k, ok := Lookup(s)
	if !ok {
		return Kind{}, fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// All returns every registered kind sorted by name.
func All() []Kind {
	out := make([]Kind, 0, len(registry))
	for _, k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
