package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// campusFile mirrors configs/campus.yaml. Lists are used instead of maps
// because viper lower-cases map keys, and teacher ids and subject names are
// case sensitive.
type campusFile struct {
	DefaultClassroom  string `mapstructure:"default_classroom"`
	RosterSizeDefault int    `mapstructure:"roster_size_default"`
	Teachers          []struct {
		ID       string   `mapstructure:"id"`
		Subjects []string `mapstructure:"subjects"`
	} `mapstructure:"teachers"`
	Classrooms []struct {
		ID        string  `mapstructure:"id"`
		Name      string  `mapstructure:"name"`
		Latitude  float64 `mapstructure:"latitude"`
		Longitude float64 `mapstructure:"longitude"`
		RadiusM   float64 `mapstructure:"radius_m"`
	} `mapstructure:"classrooms"`
	Students []models.Student `mapstructure:"students"`
	Rosters  []struct {
		Subject  string   `mapstructure:"subject"`
		Size     int      `mapstructure:"size"`
		Students []string `mapstructure:"students"`
	} `mapstructure:"rosters"`
}

// SubjectRegistry is the read-only teacher to subject mapping together with
// the classroom geofences, rosters and student directory it is published with.
type SubjectRegistry struct {
	subjects         map[string][]string
	classrooms       map[string]models.GeoFence
	rosters          map[string]int
	members          map[string][]string
	students         map[string]models.Student
	directory        []models.Student
	defaultClassroom string
	defaultRoster    int
}

// RegistryDefaults fill gaps in the campus file.
type RegistryDefaults struct {
	Classroom  models.GeoFence
	RosterSize int
}

// NewSubjectRegistry builds a registry from in-memory data.
func NewSubjectRegistry(teachers map[string][]string, classrooms []models.GeoFence, defaultClassroom string, rosters map[string]int, defaultRoster int) *SubjectRegistry {
	r := &SubjectRegistry{
		subjects:         make(map[string][]string, len(teachers)),
		classrooms:       make(map[string]models.GeoFence, len(classrooms)),
		rosters:          make(map[string]int, len(rosters)),
		members:          make(map[string][]string),
		students:         make(map[string]models.Student),
		defaultClassroom: defaultClassroom,
		defaultRoster:    defaultRoster,
	}
	for teacherID, subjects := range teachers {
		r.addSubjects(teacherID, subjects)
	}
	for _, fence := range classrooms {
		r.classrooms[fence.ClassroomID] = fence
	}
	for subject, size := range rosters {
		r.rosters[strings.TrimSpace(subject)] = size
	}
	if r.defaultClassroom == "" && len(classrooms) > 0 {
		r.defaultClassroom = classrooms[0].ClassroomID
	}
	return r
}

// LoadSubjectRegistry reads a YAML or JSON campus file.
func LoadSubjectRegistry(path string, defaults RegistryDefaults) (*SubjectRegistry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read campus file %s: %w", path, err)
	}
	var file campusFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode campus file %s: %w", path, err)
	}

	teachers := make(map[string][]string, len(file.Teachers))
	for _, t := range file.Teachers {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("campus file %s: teacher without id", path)
		}
		teachers[id] = append(teachers[id], t.Subjects...)
	}

	fences := make([]models.GeoFence, 0, len(file.Classrooms)+1)
	for _, c := range file.Classrooms {
		fence := models.GeoFence{
			ClassroomID: strings.TrimSpace(c.ID),
			Name:        c.Name,
			Center:      models.GeoPoint{Latitude: c.Latitude, Longitude: c.Longitude},
			RadiusM:     c.RadiusM,
		}
		if fence.RadiusM <= 0 {
			fence.RadiusM = defaults.Classroom.RadiusM
		}
		if fence.ClassroomID == "" || !fence.Center.Valid() || fence.RadiusM <= 0 {
			return nil, fmt.Errorf("campus file %s: invalid classroom %q", path, c.ID)
		}
		fences = append(fences, fence)
	}

	defaultClassroom := file.DefaultClassroom
	if defaultClassroom == "" {
		defaultClassroom = defaults.Classroom.ClassroomID
	}
	if !hasFence(fences, defaultClassroom) && defaults.Classroom.ClassroomID == defaultClassroom && defaultClassroom != "" {
		fences = append(fences, defaults.Classroom)
	}

	rosters := make(map[string]int, len(file.Rosters))
	members := make(map[string][]string, len(file.Rosters))
	for _, roster := range file.Rosters {
		if roster.Size > 0 {
			rosters[roster.Subject] = roster.Size
		}
		if len(roster.Students) > 0 {
			members[roster.Subject] = append(members[roster.Subject], roster.Students...)
		}
	}
	defaultRoster := file.RosterSizeDefault
	if defaultRoster <= 0 {
		defaultRoster = defaults.RosterSize
	}

	registry := NewSubjectRegistry(teachers, fences, defaultClassroom, rosters, defaultRoster)
	if err := registry.SetStudents(file.Students, members); err != nil {
		return nil, fmt.Errorf("campus file %s: %w", path, err)
	}
	return registry, nil
}

// SetStudents installs the student directory and per-subject roster
// membership. Roster entries must name directory students when a directory
// is given.
func (r *SubjectRegistry) SetStudents(directory []models.Student, members map[string][]string) error {
	r.students = make(map[string]models.Student, len(directory))
	r.directory = make([]models.Student, 0, len(directory))
	for _, student := range directory {
		student.ID = strings.TrimSpace(student.ID)
		if student.ID == "" {
			return errors.New("student without id")
		}
		if _, dup := r.students[student.ID]; dup {
			return fmt.Errorf("duplicate student %q", student.ID)
		}
		r.students[student.ID] = student
		r.directory = append(r.directory, student)
	}

	r.members = make(map[string][]string, len(members))
	for subject, ids := range members {
		subject = strings.TrimSpace(subject)
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			if len(r.students) > 0 {
				if _, ok := r.students[id]; !ok {
					return fmt.Errorf("roster %q names unknown student %q", subject, id)
				}
			}
			seen[id] = struct{}{}
			r.members[subject] = append(r.members[subject], id)
		}
	}
	return nil
}

func hasFence(fences []models.GeoFence, id string) bool {
	for _, f := range fences {
		if f.ClassroomID == id {
			return true
		}
	}
	return false
}

func (r *SubjectRegistry) addSubjects(teacherID string, subjects []string) {
	seen := make(map[string]struct{}, len(subjects))
	for _, existing := range r.subjects[teacherID] {
		seen[existing] = struct{}{}
	}
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		r.subjects[teacherID] = append(r.subjects[teacherID], subject)
	}
}

// Subjects returns the teacher's subjects in configured order.
func (r *SubjectRegistry) Subjects(teacherID string) []string {
	subjects := r.subjects[teacherID]
	out := make([]string, len(subjects))
	copy(out, subjects)
	return out
}

// IsAssigned reports whether the teacher may run sessions for subject.
func (r *SubjectRegistry) IsAssigned(teacherID, subject string) bool {
	subject = strings.TrimSpace(subject)
	for _, s := range r.subjects[teacherID] {
		if s == subject {
			return true
		}
	}
	return false
}

// Classroom returns the geofence for a classroom id.
func (r *SubjectRegistry) Classroom(id string) (models.GeoFence, bool) {
	fence, ok := r.classrooms[id]
	return fence, ok
}

// DefaultClassroomID is used when a session is created without a classroom.
func (r *SubjectRegistry) DefaultClassroomID() string {
	return r.defaultClassroom
}

// RosterSize is the class size used as the attendance denominator: the
// configured size, else the number of listed members, else the default.
func (r *SubjectRegistry) RosterSize(subject string) int {
	if size, ok := r.rosters[subject]; ok && size >= 0 {
		return size
	}
	if ids := r.members[subject]; len(ids) > 0 {
		return len(ids)
	}
	return r.defaultRoster
}

// Students lists the students enrolled in subject. Subjects without a member
// list fall back to the whole directory.
func (r *SubjectRegistry) Students(subject string) []models.Student {
	ids, ok := r.members[strings.TrimSpace(subject)]
	if !ok {
		out := make([]models.Student, len(r.directory))
		copy(out, r.directory)
		return out
	}
	out := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		student, found := r.students[id]
		if !found {
			student = models.Student{ID: id}
		}
		out = append(out, student)
	}
	return out
}

// KnownStudent reports whether studentID may be marked for subject. With
// neither a member list nor a directory configured every id is accepted.
func (r *SubjectRegistry) KnownStudent(subject, studentID string) bool {
	if ids, ok := r.members[strings.TrimSpace(subject)]; ok {
		for _, id := range ids {
			if id == studentID {
				return true
			}
		}
		return false
	}
	if len(r.students) == 0 {
		return true
	}
	_, ok := r.students[studentID]
	return ok
}
