package core

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ColumnType is the semantic type of a column.
type ColumnType string

const (
	ColumnText   ColumnType = "text"
	ColumnNumber ColumnType = "number"
	ColumnDate   ColumnType = "date"
)

// ParseColumnType validates a client supplied column type.
func ParseColumnType(s string) (ColumnType, error) {
	switch t := ColumnType(strings.ToLower(strings.TrimSpace(s))); t {
	case ColumnText, ColumnNumber, ColumnDate:
		return t, nil
	}
	return "", Validation(fmt.Sprintf("invalid column type %q: must be one of text, number, date", s))
}

// Column describes one column of an uploaded file. SuggestedType is fixed at
// ingestion; AssignedType is the only mutable field.
type Column struct {
	Name          string     `json:"name"`
	SuggestedType ColumnType `json:"suggestedType"`
	AssignedType  ColumnType `json:"assignedType"`
}

// ColumnUpdate is one positional entry of a column type update.
type ColumnUpdate struct {
	Name         string `json:"name"`
	AssignedType string `json:"assignedType"`
}

// File is the metadata record of one uploaded tabular file.
type File struct {
	ID           string       `json:"id"`
	OriginalName string       `json:"originalName"`
	StoredName   string       `json:"storedName"`
	FileSize     int64        `json:"fileSize"`
	MimeType     string       `json:"mimeType"`
	OwnerID      string       `json:"ownerId"`
	Owner        *UserSummary `json:"owner,omitempty"`
	Columns      []Column     `json:"columns"`
	RowCount     int          `json:"rowCount"`

	// RowCountExact is false while RowCount may still be a capped preview
	// count awaiting reconciliation.
	RowCountExact bool `json:"rowCountExact"`

	// PreviewData is always present on a single file, even when empty.
	// Listings leave it nil.
	PreviewData [][]string `json:"previewData"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// FileFilter narrows file listings. An empty OwnerID lists every file.
type FileFilter struct {
	OwnerID string
}

// Permission is a single capability. The set of permissions is closed.
type Permission uint8

const (
	PermViewAll Permission = 1 << iota
	PermDeleteAll
	PermEditAll
	PermManageUsers
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermViewAll, "view_all"},
	{PermDeleteAll, "delete_all"},
	{PermEditAll, "edit_all"},
	{PermManageUsers, "manage_users"},
}

func (p Permission) String() string {
	for _, pn := range permissionNames {
		if pn.perm == p {
			return pn.name
		}
	}
	return fmt.Sprintf("permission(%d)", uint8(p))
}

// ParsePermission maps a wire name to its Permission.
func ParsePermission(name string) (Permission, bool) {
	for _, pn := range permissionNames {
		if pn.name == name {
			return pn.perm, true
		}
	}
	return 0, false
}

// PermissionSet is a set of permissions.
type PermissionSet uint8

// AllPermissions is granted to the first user ever created.
const AllPermissions = PermissionSet(PermViewAll | PermDeleteAll | PermEditAll | PermManageUsers)

// NewPermissionSet builds a set from individual permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= PermissionSet(p)
	}
	return s
}

// ParsePermissionSet parses wire names. Unknown names are rejected together.
func ParsePermissionSet(names []string) (PermissionSet, error) {
	var (
		set     PermissionSet
		invalid []string
	)
	for _, name := range names {
		p, ok := ParsePermission(name)
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		set |= PermissionSet(p)
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return 0, Validation("invalid permissions: " + strings.Join(invalid, ", "))
	}
	return set, nil
}

func (s PermissionSet) Has(p Permission) bool {
	return s&PermissionSet(p) != 0
}

func (s PermissionSet) With(p Permission) PermissionSet {
	return s | PermissionSet(p)
}

func (s PermissionSet) Without(p Permission) PermissionSet {
	return s &^ PermissionSet(p)
}

// Names returns the wire names in canonical order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if s.Has(pn.perm) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParsePermissionSet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// User is an account. PasswordHash never leaves the service layer.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Permissions  PermissionSet `json:"permissions"`
	PasswordHash string        `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// UserSummary is the owner projection attached to file records.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID      string
	Email       string
	Permissions PermissionSet
}

// Can reports whether the actor holds p.
func (a Actor) Can(p Permission) bool {
	return a.Permissions.Has(p)
}

// NewUser is the registration input.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// UserPatch is a partial profile update; nil fields are left unchanged.
type UserPatch struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Upload is one inbound byte stream with its client supplied metadata.
type Upload struct {
	Filename string
	MimeType string
	Body     io.Reader
}
