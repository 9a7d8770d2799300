package macro

import "strings"

type recordField struct {
	set       func(*Mapper, string)
	canonical bool
}

// recordKeys maps accepted record keys to mapper fields. A canonical key wins
// over its aliases when a record carries both.
var recordKeys = map[string]recordField{
	"user_first_name":  {func(m *Mapper, v string) { m.UserFirstName = v }, true},
	"first_name":       {func(m *Mapper, v string) { m.UserFirstName = v }, false},
	"user_last_name":   {func(m *Mapper, v string) { m.UserLastName = v }, true},
	"last_name":        {func(m *Mapper, v string) { m.UserLastName = v }, false},
	"sis_campus":       {func(m *Mapper, v string) { m.SISCampus = v }, true},
	"campus":           {func(m *Mapper, v string) { m.SISCampus = v }, false},
	"sis_term_id":      {func(m *Mapper, v string) { m.SISTermID = v }, true},
	"term_id":          {func(m *Mapper, v string) { m.SISTermID = v }, false},
	"sis_course_id":    {func(m *Mapper, v string) { m.SISCourseID = v }, true},
	"user_network_id":  {func(m *Mapper, v string) { m.UserNetworkID = v }, true},
	"network_id":       {func(m *Mapper, v string) { m.UserNetworkID = v }, false},
	"user_eid":         {func(m *Mapper, v string) { m.UserNetworkID = v }, false},
	"user_role":        {func(m *Mapper, v string) { m.UserRole = v }, true},
	"role":             {func(m *Mapper, v string) { m.UserRole = v }, false},
	"user_id":          {func(m *Mapper, v string) { m.UserID = v }, true},
	"class_number":     {func(m *Mapper, v string) { m.ClassNumber = v }, true},
	"class_nbr":        {func(m *Mapper, v string) { m.ClassNumber = v }, false},
	"canvas_course_id": {func(m *Mapper, v string) { m.CanvasCourseID = v }, true},
	"course_id":        {func(m *Mapper, v string) { m.CanvasCourseID = v }, false},
}

// NormalizeKey folds a record key: lowercase, trimmed, '-' and ' ' as '_'.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "_", " ", "_").Replace(key)
}

// FromRecord builds a Mapper from a flat record such as a CSV row. Keys that
// name no field are ignored.
func FromRecord(record map[string]string) Mapper {
	var m Mapper
	for _, canonicalPass := range []bool{false, true} {
		for key, value := range record {
			field, ok := recordKeys[NormalizeKey(key)]
			if ok && field.canonical == canonicalPass {
				field.set(&m, value)
			}
		}
	}
	return m
}
