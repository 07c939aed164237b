package domain

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleNotary    Role = "notary"
	RoleSecretary Role = "secretary"
	RoleAdmin     Role = "admin"

	// RoleSystem tags audit rows written by the service itself. It has no
	// permissions, so a token carrying it is rejected.
	RoleSystem Role = "system"
)

// Permission is an action name checked by the auth gate.
type Permission string

const (
	PermCreateSession               Permission = "createSession"
	PermGetSessions                 Permission = "getSessions"
	PermAddUser                     Permission = "addUser"
	PermDeleteUser                  Permission = "deleteUser"
	PermJoinSession                 Permission = "joinSession"
	PermUploadSessionDocument       Permission = "uploadSessionDocument"
	PermSendSessionForNotarization  Permission = "sendSessionForNotarization"
	PermUploadDocuments             Permission = "uploadDocuments"
	PermGetHistory                  Permission = "getHistory"
	PermGetDocumentByRole           Permission = "getDocumentByRole"
	PermForwardDocumentStatus       Permission = "forwardDocumentStatus"
	PermGetAllNotarization          Permission = "getAllNotarization"
	PermGetApproveHistory           Permission = "getApproveHistory"
	PermApproveSignatureByUser      Permission = "approveSignatureByUser"
	PermApproveSignatureBySecretary Permission = "approveSignatureBySecretary"
	PermGetStatusHistory            Permission = "getStatusHistory"
)

//go:embed permissions.yaml
var permissionsYAML []byte

var rolePermissions = mustLoadRolePermissions(permissionsYAML)

func mustLoadRolePermissions(raw []byte) map[Role]map[Permission]struct{} {
	table, err := parseRolePermissions(raw)
	if err != nil {
		panic(fmt.Sprintf("load role permissions: %v", err))
	}
	return table
}

func parseRolePermissions(raw []byte) (map[Role]map[Permission]struct{}, error) {
	var doc map[string][]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	table := make(map[Role]map[Permission]struct{}, len(doc))
	for role, actions := range doc {
		set := make(map[Permission]struct{}, len(actions))
		for _, action := range actions {
			action = strings.TrimSpace(action)
			if action == "" {
				return nil, fmt.Errorf("role %s: empty action", role)
			}
			set[Permission(action)] = struct{}{}
		}
		table[Role(role)] = set
	}
	return table, nil
}

func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Can reports whether the role's permission set contains the action.
func (r Role) Can(p Permission) bool {
	set, ok := rolePermissions[r]
	if !ok {
		return false
	}
	_, ok = set[p]
	return ok
}

// Privileged roles see every session regardless of membership.
func (r Role) Privileged() bool {
	return r == RoleNotary || r == RoleSecretary || r == RoleAdmin
}

// Identity is the caller resolved from a bearer credential.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// SystemIdentity is the actor recorded for transitions the service runs on its own.
var SystemIdentity = Identity{UserID: "system", Role: RoleSystem}

func (i Identity) EmailMatches(email string) bool {
	return i.Email != "" && strings.EqualFold(strings.TrimSpace(email), i.Email)
}
