// Package ruleconfig defines the closed set of compliance rule keys, their
// per-key config shapes, the built-in defaults, and the merge that layers a
// rule pack's overrides onto those defaults.
package ruleconfig

type Key string

const (
	KeyPreMeetingDocsDays             Key = "PRE_MEETING_DOCS_DAYS"
	KeyPostMeetingDocsDays            Key = "POST_MEETING_DOCS_DAYS"
	KeyDefaultDeliveryMethod          Key = "DEFAULT_DELIVERY_METHOD"
	KeyUSMailPreMeetingDays           Key = "US_MAIL_PRE_MEETING_DAYS"
	KeyUSMailPostMeetingDays          Key = "US_MAIL_POST_MEETING_DAYS"
	KeyConferenceNotesRequired        Key = "CONFERENCE_NOTES_REQUIRED"
	KeyInitialIEPConsentGate          Key = "INITIAL_IEP_CONSENT_GATE"
	KeyContinuedMeetingNoticeDays     Key = "CONTINUED_MEETING_NOTICE_DAYS"
	KeyContinuedMeetingMutualAgree    Key = "CONTINUED_MEETING_MUTUAL_AGREEMENT"
	KeyAudioRecordingRule             Key = "AUDIO_RECORDING_RULE"
	KeyCustomGateExpr                 Key = "CUSTOM_GATE_EXPR"
)

// KnownKeys returns every rule key the engine understands, in stable order.
func KnownKeys() []Key {
	return []Key{
		KeyPreMeetingDocsDays,
		KeyPostMeetingDocsDays,
		KeyDefaultDeliveryMethod,
		KeyUSMailPreMeetingDays,
		KeyUSMailPostMeetingDays,
		KeyConferenceNotesRequired,
		KeyInitialIEPConsentGate,
		KeyContinuedMeetingNoticeDays,
		KeyContinuedMeetingMutualAgree,
		KeyAudioRecordingRule,
		KeyCustomGateExpr,
	}
}

const DeliverySendHome = "SEND_HOME"

type DaysConfig struct {
	Days int `json:"days"`
}

type DeliveryConfig struct {
	Method string `json:"method"`
}

type RequiredConfig struct {
	Required bool `json:"required"`
}

type EnabledConfig struct {
	Enabled bool `json:"enabled"`
}

type RecordingConfig struct {
	StaffMustRecordIfParentRecords bool `json:"staffMustRecordIfParentRecords"`
	MarkAsNotOfficialRecord        bool `json:"markAsNotOfficialRecord"`
}

type ExprConfig struct {
	Expr string `json:"expr"`
}

// Config is a tagged variant: exactly one shape pointer is non-nil, matching
// the rule key it is stored under. Disabled records that the pack explicitly
// switched the rule off.
type Config struct {
	Disabled  bool             `json:"disabled,omitempty"`
	Days      *DaysConfig      `json:"days,omitempty"`
	Delivery  *DeliveryConfig  `json:"delivery,omitempty"`
	Required  *RequiredConfig  `json:"required,omitempty"`
	Enabled   *EnabledConfig   `json:"enabled,omitempty"`
	Recording *RecordingConfig `json:"recording,omitempty"`
	Expr      *ExprConfig      `json:"expr,omitempty"`
}

func (c Config) clone() Config {
	out := Config{Disabled: c.Disabled}
	if c.Days != nil {
		v := *c.Days
		out.Days = &v
	}
	if c.Delivery != nil {
		v := *c.Delivery
		out.Delivery = &v
	}
	if c.Required != nil {
		v := *c.Required
		out.Required = &v
	}
	if c.Enabled != nil {
		v := *c.Enabled
		out.Enabled = &v
	}
	if c.Recording != nil {
		v := *c.Recording
		out.Recording = &v
	}
	if c.Expr != nil {
		v := *c.Expr
		out.Expr = &v
	}
	return out
}

// Set is an effective configuration keyed by rule.
type Set map[Key]Config

// Defaults returns a fresh copy of the built-in rule configuration. Every
// call allocates new shape values so callers can never share mutation
// through the defaults.
func Defaults() Set {
	return Set{
		KeyPreMeetingDocsDays:          {Days: &DaysConfig{Days: 5}},
		KeyPostMeetingDocsDays:         {Days: &DaysConfig{Days: 5}},
		KeyDefaultDeliveryMethod:       {Delivery: &DeliveryConfig{Method: DeliverySendHome}},
		KeyUSMailPreMeetingDays:        {Days: &DaysConfig{Days: 3}},
		KeyUSMailPostMeetingDays:       {Days: &DaysConfig{Days: 3}},
		KeyConferenceNotesRequired:     {Required: &RequiredConfig{Required: true}},
		KeyInitialIEPConsentGate:       {Enabled: &EnabledConfig{Enabled: true}},
		KeyContinuedMeetingNoticeDays:  {Days: &DaysConfig{Days: 10}},
		KeyContinuedMeetingMutualAgree: {Required: &RequiredConfig{Required: true}},
		KeyAudioRecordingRule: {Recording: &RecordingConfig{
			StaffMustRecordIfParentRecords: true,
			MarkAsNotOfficialRecord:        true,
		}},
		KeyCustomGateExpr: {Expr: &ExprConfig{Expr: ""}},
	}
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v.clone()
	}
	return out
}
