package core

// FileAction is an operation on a single file record.
type FileAction int

const (
	FileView FileAction = iota
	FileEdit
	FileDelete
)

func (a FileAction) String() string {
	switch a {
	case FileView:
		return "view"
	case FileEdit:
		return "edit"
	case FileDelete:
		return "delete"
	}
	return "access"
}

// override returns the permission that grants a on files owned by others.
func (a FileAction) override() Permission {
	switch a {
	case FileEdit:
		return PermEditAll
	case FileDelete:
		return PermDeleteAll
	}
	return PermViewAll
}

// AccessPolicy decides whether an actor may act on a file or on user
// accounts. It holds no state; every decision is a function of its inputs.
type AccessPolicy struct{}

// AuthorizeFile allows owners and holders of the action's override
// permission. Anyone else gets a Forbidden error naming the missing grant.
func (AccessPolicy) AuthorizeFile(actor Actor, f *File, action FileAction) error {
	perm := action.override()
	if actor.Can(perm) || f.OwnerID == actor.UserID {
		return nil
	}
	return Forbidden("Not authorized to " + action.String() + " this file: requires " + perm.String() + " permission or ownership")
}

// FileListScope returns the filter for listings: unrestricted with view_all,
// otherwise only the actor's own files. Listings never fail on permissions.
func (AccessPolicy) FileListScope(actor Actor) FileFilter {
	if actor.Can(PermViewAll) {
		return FileFilter{}
	}
	return FileFilter{OwnerID: actor.UserID}
}

// AuthorizeUserAdmin gates every user administration operation.
func (AccessPolicy) AuthorizeUserAdmin(actor Actor) error {
	if actor.Can(PermManageUsers) {
		return nil
	}
	return Forbidden("Requires " + PermManageUsers.String() + " permission")
}

// CheckPermissionUpdate rejects an actor removing manage_users from themself.
func (AccessPolicy) CheckPermissionUpdate(actor Actor, targetID string, next PermissionSet) error {
	if targetID == actor.UserID && !next.Has(PermManageUsers) {
		return Validation("Cannot remove " + PermManageUsers.String() + " permission from yourself")
	}
	return nil
}

// CheckUserDeletion rejects self deletion.
func (AccessPolicy) CheckUserDeletion(actor Actor, targetID string) error {
	if targetID == actor.UserID {
		return Validation("Cannot delete yourself")
	}
	return nil
}
