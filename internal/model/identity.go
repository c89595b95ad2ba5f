package model

import (
	"strconv"
	"strings"
)

// Identity is the admin snapshot resolved once at join time.
type Identity struct {
	AdminID      string   `json:"adminId"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
	IsSuperAdmin bool     `json:"isSuperAdmin"`
}

// Key identifies identities with the same targeting inputs. Two
// connections with equal keys always see the same unread list.
// Every part is length prefixed so no role or permission text can
// imitate a separator.
func (i Identity) Key() string {
	var b strings.Builder
	writePart(&b, 'a', i.AdminID)
	for _, r := range i.Roles {
		writePart(&b, 'r', r)
	}
	for _, p := range i.Permissions {
		writePart(&b, 'p', p)
	}
	return b.String()
}

func writePart(b *strings.Builder, kind byte, s string) {
	b.WriteByte(kind)
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}
