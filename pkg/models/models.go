// Package models defines the persisted entities of the EasySave service.
//
// There are exactly two tables. The users table holds account records with
// four independently unique columns (username, uniqueid, email, accesskey);
// the data table holds namespaced blocks keyed by their full hierarchical
// identifier. Hierarchy between blocks is implicit in the identifier string
// and discovered only through prefix queries at read time.
package models

import (
	"regexp"

	"github.com/easysave/easysave/pkg/identifier"
)

// User is a registered account. Username, UniqueID, Email, and AccessKey
// are each globally unique; violating any one fails the create. Username,
// UniqueID, and the environment encoded in UniqueID are immutable once the
// row exists.
type User struct {
	Username     string `gorm:"primaryKey;size:255" json:"username"`
	UniqueID     string `gorm:"column:uniqueid;uniqueIndex;size:1024;not null" json:"uniqueid"`
	Email        string `gorm:"uniqueIndex;size:320;not null" json:"email"`
	AccessKey    string `gorm:"column:accesskey;uniqueIndex;size:128;not null" json:"-"`
	PasswordHash string `gorm:"column:password;type:text;not null" json:"-"`
}

// TableName maps User to the users table.
func (User) TableName() string { return "users" }

// Environment returns the environment encoded in the user's namespace root.
func (u *User) Environment() (identifier.Environment, error) {
	id, err := identifier.Parse(u.UniqueID)
	if err != nil {
		return "", err
	}
	return id.Environment, nil
}

// Block is a single identifier→value record in the namespaced store.
// The identifier is the primary key; deleting a block does not cascade to
// blocks that have it as a prefix.
type Block struct {
	Identifier string `gorm:"primaryKey;size:1024" json:"identifier"`
	Value      string `gorm:"type:text" json:"value"`
}

// TableName maps Block to the data table.
func (Block) TableName() string { return "data" }

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// ValidEmail reports whether email has a plausible address shape. This is
// a format check only, not a deliverability check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
