package model

// Department is an institutional department offering courses.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Course is a taught course attendance sessions attach to.
type Course struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	DeptID string `json:"dept_id"`
}

// DefaultRadius is the geofence radius in meters applied when a session is
// started without an explicit one.
const DefaultRadius = 100.0

// Departments is the institutional catalog offered in the start-session form.
var Departments = []Department{
	{ID: "cpe", Name: "Computer Engineering"},
	{ID: "ele", Name: "Electrical Engineering"},
	{ID: "mec", Name: "Mechanical Engineering"},
	{ID: "civ", Name: "Civil Engineering"},
	{ID: "che", Name: "Chemical Engineering"},
}

// Courses lists the courses a lecturer can open a session for.
var Courses = []Course{
	{ID: "cpe301", Code: "CPE 301", Name: "Digital Logic Design", DeptID: "cpe"},
	{ID: "cpe305", Code: "CPE 305", Name: "Computer Architecture", DeptID: "cpe"},
	{ID: "ele201", Code: "ELE 201", Name: "Circuit Theory I", DeptID: "ele"},
	{ID: "ele401", Code: "ELE 401", Name: "Control Engineering", DeptID: "ele"},
	{ID: "mec201", Code: "MEC 201", Name: "Engineering Thermodynamics", DeptID: "mec"},
	{ID: "civ301", Code: "CIV 301", Name: "Structural Analysis", DeptID: "civ"},
}

// Levels are the study levels selectable when starting a session.
var Levels = []string{"100", "200", "300", "400", "500"}

// DepartmentByID looks a department up in the catalog.
func DepartmentByID(id string) (Department, bool) {
	for _, d := range Departments {
		if d.ID == id {
			return d, true
		}
	}
	return Department{}, false
}

// CourseByID looks a course up in the catalog.
func CourseByID(id string) (Course, bool) {
	for _, c := range Courses {
		if c.ID == id {
			return c, true
		}
	}
	return Course{}, false
}

// ValidLevel reports whether level is one of the catalog levels.
func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}
