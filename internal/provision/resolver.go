package provision

// Kind names an identity object collection on the backend.
type Kind string

const (
	KindUsers    Kind = "users"
	KindProjects Kind = "projects"
	KindGroups   Kind = "groups"
	KindRoles    Kind = "roles"
)

// Object is one entry of a backend listing.
type Object struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FindID resolves a human-readable name to its backend identifier within an
// already-fetched listing. The match is exact and case-sensitive; the first
// hit wins. The second return is false when no object carries the name.
func FindID(objects []Object, name string) (string, bool) {
	for _, o := range objects {
		if o.Name == name {
			return o.ID, true
		}
	}
	return "", false
}
