package models

import "fmt"

// PermissionLevel is an ordinal access tier: normal < paid < vip.
// It is used both as a user's level and as the level content requires.
type PermissionLevel int

// PermissionLevel constants.
const (
	PermissionNormal PermissionLevel = 0
	PermissionPaid   PermissionLevel = 1
	PermissionVIP    PermissionLevel = 2
)

// Valid reports whether l is a known tier.
func (l PermissionLevel) Valid() bool {
	return l >= PermissionNormal && l <= PermissionVIP
}

func (l PermissionLevel) String() string {
	switch l {
	case PermissionNormal:
		return "normal"
	case PermissionPaid:
		return "paid"
	case PermissionVIP:
		return "vip"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// HasPermission reports whether a user at level user may see content at level content.
func HasPermission(user, content PermissionLevel) bool {
	return user >= content
}

// MinPermission returns the most permissive level among levels.
// An empty input yields PermissionNormal.
func MinPermission(levels ...PermissionLevel) PermissionLevel {
	if len(levels) == 0 {
		return PermissionNormal
	}
	lowest := levels[0]
	for _, l := range levels[1:] {
		if l < lowest {
			lowest = l
		}
	}
	return lowest
}
