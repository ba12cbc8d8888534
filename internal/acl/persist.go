package acl

import (
	"bufio"
	"fmt"
	"os"

	"github.com/minidb/minidb/internal/binfmt"
	"github.com/minidb/minidb/internal/catalog"
)

// Save writes the ACL's users and role mappings to its canonical path
// (Database/<db>/<db>.acl). Sessions are runtime-only and are never
// persisted, matching the original manager's save/load pair.
func (a *ACL) Save(dbName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := catalog.EnsureLayout(dbName); err != nil {
		return err
	}
	path := catalog.ACLPath(dbName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("acl: create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)

	binfmt.WriteU32(w, uint32(len(a.users)))
	for _, u := range a.users {
		binfmt.WriteFixedString(w, u.Username, MaxUsernameSize)
		binfmt.WriteFixedString(w, u.PasswordHash, MaxPasswordHashSize)
		binfmt.WriteBool(w, u.Active)
	}

	binfmt.WriteU32(w, uint32(len(a.roles)))
	for name, r := range a.roles {
		binfmt.WriteFixedString(w, name, MaxUsernameSize)
		binfmt.WriteU32(w, uint32(r))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("acl: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("acl: close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// Load reads an ACL previously written by Save. If the file does not
// exist, it returns a fresh, empty ACL — a new database starts with no
// users, matching the original's "missing file means init empty"
// behavior.
func Load(dbName string) (*ACL, error) {
	path := catalog.ACLPath(dbName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("acl: open %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	a := New()

	numUsers, err := binfmt.ReadU32(r)
	if err != nil {
		return nil, err
	}
	a.users = make([]User, numUsers)
	for i := uint32(0); i < numUsers; i++ {
		username, err := binfmt.ReadFixedString(r, MaxUsernameSize)
		if err != nil {
			return nil, err
		}
		hash, err := binfmt.ReadFixedString(r, MaxPasswordHashSize)
		if err != nil {
			return nil, err
		}
		active, err := binfmt.ReadBool(r)
		if err != nil {
			return nil, err
		}
		a.users[i] = User{Username: username, PasswordHash: hash, Active: active}
	}

	numRoles, err := binfmt.ReadU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numRoles; i++ {
		username, err := binfmt.ReadFixedString(r, MaxUsernameSize)
		if err != nil {
			return nil, err
		}
		role, err := binfmt.ReadU32(r)
		if err != nil {
			return nil, err
		}
		a.roles[username] = Role(role)
	}

	return a, nil
}
