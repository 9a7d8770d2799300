// Package macro holds the macro variable record and the literal token
// substitution applied to LMS templates.
package macro

// Token constants. Each is a bracketed literal that does not occur in
// ordinary template text.
const (
	TokenUserFirstName  = "[[USER_FIRST_NAME]]"
	TokenUserLastName   = "[[USER_LAST_NAME]]"
	TokenSISCampus      = "[[SIS_CAMPUS]]"
	TokenSISTermID      = "[[SIS_TERM_ID]]"
	TokenSISCourseID    = "[[SIS_COURSE_ID]]"
	TokenUserNetworkID  = "[[USER_EID]]"
	TokenUserRole       = "[[USER_ROLE]]"
	TokenUserID         = "[[USER_ID]]"
	TokenClassNumber    = "[[CLASS_NBR]]"
	TokenCanvasCourseID = "[[CANVAS_COURSE_ID]]"
)

const (
	tokenOpen  = "[["
	tokenClose = "]]"
)

var tokens = [...]string{
	TokenUserFirstName,
	TokenUserLastName,
	TokenSISCampus,
	TokenSISTermID,
	TokenSISCourseID,
	TokenUserNetworkID,
	TokenUserRole,
	TokenUserID,
	TokenClassNumber,
	TokenCanvasCourseID,
}

// Mapper carries the values substituted for each token. Unset fields are
// empty strings and substitute as such.
type Mapper struct {
	UserFirstName  string `json:"user_first_name,omitempty" yaml:"user_first_name,omitempty"`
	UserLastName   string `json:"user_last_name,omitempty" yaml:"user_last_name,omitempty"`
	SISCampus      string `json:"sis_campus,omitempty" yaml:"sis_campus,omitempty"`
	SISTermID      string `json:"sis_term_id,omitempty" yaml:"sis_term_id,omitempty"`
	SISCourseID    string `json:"sis_course_id,omitempty" yaml:"sis_course_id,omitempty"`
	UserNetworkID  string `json:"user_network_id,omitempty" yaml:"user_network_id,omitempty"`
	UserRole       string `json:"user_role,omitempty" yaml:"user_role,omitempty"`
	UserID         string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	ClassNumber    string `json:"class_number,omitempty" yaml:"class_number,omitempty"`
	CanvasCourseID string `json:"canvas_course_id,omitempty" yaml:"canvas_course_id,omitempty"`
}

// Tokens returns every known token in declaration order.
func Tokens() []string {
	out := make([]string, len(tokens))
	copy(out, tokens[:])
	return out
}

// IsToken reports whether s is exactly one of the known tokens.
func IsToken(s string) bool {
	for _, tok := range tokens {
		if tok == s {
			return true
		}
	}
	return false
}

// Values returns the substitution value for every token, keyed by token.
// The role value is already form encoded.
func (m Mapper) Values() map[string]string {
	return map[string]string{
		TokenUserFirstName:  m.UserFirstName,
		TokenUserLastName:   m.UserLastName,
		TokenSISCampus:      m.SISCampus,
		TokenSISTermID:      m.SISTermID,
		TokenSISCourseID:    m.SISCourseID,
		TokenUserNetworkID:  m.UserNetworkID,
		TokenUserRole:       EncodeFormValue(m.UserRole),
		TokenUserID:         m.UserID,
		TokenClassNumber:    m.ClassNumber,
		TokenCanvasCourseID: m.CanvasCourseID,
	}
}

// Overlay returns m with every non-empty field of o applied on top.
func (m Mapper) Overlay(o Mapper) Mapper {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&m.UserFirstName, o.UserFirstName},
		{&m.UserLastName, o.UserLastName},
		{&m.SISCampus, o.SISCampus},
		{&m.SISTermID, o.SISTermID},
		{&m.SISCourseID, o.SISCourseID},
		{&m.UserNetworkID, o.UserNetworkID},
		{&m.UserRole, o.UserRole},
		{&m.UserID, o.UserID},
		{&m.ClassNumber, o.ClassNumber},
		{&m.CanvasCourseID, o.CanvasCourseID},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return m
}
