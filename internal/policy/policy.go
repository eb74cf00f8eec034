// Package policy decides whether an acting user may perform an action on an
// owned resource. There is no sharing and no admin override: access is
// granted iff the actor owns the resource.
package policy

type Action string

const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Owned is any resource attributable to a single owning user.
type Owned interface {
	OwnerID() uint64
}

func CanAccess(userID uint64, resource Owned, _ Action) bool {
	return resource.OwnerID() == userID
}
