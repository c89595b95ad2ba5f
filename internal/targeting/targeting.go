// Package targeting decides which admins a notification is addressed to.
//
// The same predicate backs the live push path and the resync/unread
// query path so the two can never disagree on eligibility.
package targeting

import (
	"backoffice/internal/model"
)

const (
	roomAdminPrefix      = "admin:"
	roomRolePrefix       = "role:"
	roomPermissionPrefix = "permission:"
)

// IsBroadcast reports whether n has no targeting fields at all.
func IsBroadcast(n *model.Notification) bool {
	return (n.TargetAdminID == nil || *n.TargetAdminID == "") &&
		len(n.TargetRoles) == 0 &&
		len(n.TargetPermissions) == 0
}

// Matches reports whether id should receive n. Populated criteria are
// OR-ed; a notification with none is a broadcast.
func Matches(n *model.Notification, id model.Identity) bool {
	if n.TargetAdminID != nil && *n.TargetAdminID != "" && *n.TargetAdminID == id.AdminID {
		return true
	}
	if len(n.TargetRoles) > 0 && intersects(n.TargetRoles, id.Roles) {
		return true
	}
	if len(n.TargetPermissions) > 0 && intersects(n.TargetPermissions, id.Permissions) {
		return true
	}
	return IsBroadcast(n)
}

// Filter returns the notifications in ns that match id, preserving order.
func Filter(ns []model.Notification, id model.Identity) []model.Notification {
	out := make([]model.Notification, 0, len(ns))
	for i := range ns {
		if Matches(&ns[i], id) {
			out = append(out, ns[i])
		}
	}
	return out
}

func AdminRoom(adminID string) string {
	return roomAdminPrefix + adminID
}

func RoleRoom(role string) string {
	return roomRolePrefix + role
}

func PermissionRoom(perm string) string {
	return roomPermissionPrefix + perm
}

// RoomsFor derives the rooms a connection with id belongs to.
func RoomsFor(id model.Identity) []string {
	rooms := make([]string, 0, 1+len(id.Roles)+len(id.Permissions))
	rooms = append(rooms, AdminRoom(id.AdminID))
	for _, r := range id.Roles {
		rooms = append(rooms, RoleRoom(r))
	}
	for _, p := range id.Permissions {
		rooms = append(rooms, PermissionRoom(p))
	}
	return rooms
}

// TargetRooms lists the rooms n is addressed to; nil for a broadcast.
func TargetRooms(n *model.Notification) []string {
	if IsBroadcast(n) {
		return nil
	}
	var rooms []string
	if n.TargetAdminID != nil && *n.TargetAdminID != "" {
		rooms = append(rooms, AdminRoom(*n.TargetAdminID))
	}
	for _, r := range n.TargetRoles {
		rooms = append(rooms, RoleRoom(r))
	}
	for _, p := range n.TargetPermissions {
		rooms = append(rooms, PermissionRoom(p))
	}
	return rooms
}

// MatchesRooms is the room formulation of Matches: a broadcast reaches
// every room set, otherwise the two room sets must intersect.
func MatchesRooms(n *model.Notification, memberOf []string) bool {
	target := TargetRooms(n)
	if target == nil {
		return true
	}
	return intersects(target, memberOf)
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	set := make(map[string]struct{}, len(small))
	for _, v := range small {
		set[v] = struct{}{}
	}
	for _, v := range large {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
