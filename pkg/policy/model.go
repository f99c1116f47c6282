package policy

import "strings"

// modelText is the authorization model. Policy rules carry an explicit
// effect so a deny tuple can override inherited allows. Objects are
// matched with keyMatch2 so a rule for /api/v1/roles/:id covers concrete
// ids, and act "*" grants every action on an object.
const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// EffectAllow and EffectDeny are the accepted values of a rule's eft column.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

const (
	userPrefix = "user:"
	rolePrefix = "role:"
)

// UserSubject encodes a user id as a policy subject.
func UserSubject(userID string) string {
	return userPrefix + userID
}

// RoleSubject encodes a role id as a policy subject.
func RoleSubject(roleID string) string {
	return rolePrefix + roleID
}

// SubjectRoleID reports whether a subject is a role and, if so, its id.
func SubjectRoleID(subject string) (string, bool) {
	if strings.HasPrefix(subject, rolePrefix) {
		return strings.TrimPrefix(subject, rolePrefix), true
	}
	return "", false
}

// SubjectUserID reports whether a subject is a user and, if so, its id.
func SubjectUserID(subject string) (string, bool) {
	if strings.HasPrefix(subject, userPrefix) {
		return strings.TrimPrefix(subject, userPrefix), true
	}
	return "", false
}
