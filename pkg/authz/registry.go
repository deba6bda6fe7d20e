package authz

const (
	RoleCaseManager   = "case-manager"
	RoleSchoolAdmin   = "school-admin"
	RoleDistrictAdmin = "district-admin"
	RoleStateAdmin    = "state-admin"
	RoleAnonymous     = "anonymous"
)

const (
	ActionRead     = "read"
	ActionWrite    = "write"
	ActionActivate = "activate"
	ActionClose    = "close"
)

const DomainGlobal = "global"

const (
	ObjectRulePacks       = "compliance.rule-packs"
	ObjectRuleResolution  = "compliance.rule-resolution"
	ObjectMeetings        = "meetings.meetings"
	ObjectMeetingEvidence = "meetings.evidence"
	ObjectClosePreview    = "meetings.close-preview"
)
