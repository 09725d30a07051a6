package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type TeacherInfo struct {
	Id    string `yaml:"id" json:"teacher_id"`
	Name  string `yaml:"name" json:"teacher_name"`
	Email string `yaml:"email" json:"teacher_email"`
}

// ClassInfo describes the class a recorded session belongs to. It is copied
// onto every attendance record written for the session.
type ClassInfo struct {
	ClassId    string      `yaml:"class_id" json:"class_id"`
	ClassName  string      `yaml:"class_name" json:"class_name"`
	Department string      `yaml:"department" json:"department"`
	Topic      string      `yaml:"topic" json:"topic"`
	Room       string      `yaml:"room" json:"room"`
	StartTime  string      `yaml:"start_time" json:"class_start_time"`
	EndTime    string      `yaml:"end_time" json:"class_end_time"`
	Schedule   string      `yaml:"schedule" json:"class_schedule"`
	Teacher    TeacherInfo `yaml:"teacher" json:"teacher"`
}

func DefaultClassInfo() ClassInfo {
	return ClassInfo{
		ClassId:    "101",
		ClassName:  "Computer Science 101",
		Department: "Computer Science",
		Topic:      "Introduction to Programming",
		Room:       "Room 204",
		StartTime:  "09:00 AM",
		EndTime:    "10:30 AM",
		Schedule:   "MWF 9:00-10:30",
		Teacher: TeacherInfo{
			Id:    "teacher_001",
			Name:  "Dr. Smith",
			Email: "smith@university.edu",
		},
	}
}

// ClassCatalog maps recording names (the <record> in videos/<record>.mp4)
// to class descriptors. Recordings without an entry use Default.
type ClassCatalog struct {
	Default ClassInfo            `yaml:"default"`
	Classes map[string]ClassInfo `yaml:"classes"`
}

func DefaultClassCatalog() *ClassCatalog {
	return &ClassCatalog{Default: DefaultClassInfo(), Classes: map[string]ClassInfo{}}
}

// LoadClassCatalog reads a YAML catalog. An empty path yields the built in
// defaults. Fields left empty in the file fall back to the default class.
func LoadClassCatalog(path string) (*ClassCatalog, error) {
	if path == "" {
		return DefaultClassCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading class catalog '%s': %w", path, err)
	}

	return ParseClassCatalog(data)
}

func ParseClassCatalog(data []byte) (*ClassCatalog, error) {
	var catalog ClassCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("error parsing class catalog: %w", err)
	}

	catalog.Default = fillClassInfo(catalog.Default, DefaultClassInfo())
	if catalog.Classes == nil {
		catalog.Classes = map[string]ClassInfo{}
	}
	for name, info := range catalog.Classes {
		catalog.Classes[name] = fillClassInfo(info, catalog.Default)
	}

	return &catalog, nil
}

func (c *ClassCatalog) Lookup(recordName string) ClassInfo {
	if info, ok := c.Classes[recordName]; ok {
		return info
	}
	return c.Default
}

// SessionDate is the date stamped on records written for a session.
func SessionDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func fillClassInfo(info, fallback ClassInfo) ClassInfo {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return ClassInfo{
		ClassId:    pick(info.ClassId, fallback.ClassId),
		ClassName:  pick(info.ClassName, fallback.ClassName),
		Department: pick(info.Department, fallback.Department),
		Topic:      pick(info.Topic, fallback.Topic),
		Room:       pick(info.Room, fallback.Room),
		StartTime:  pick(info.StartTime, fallback.StartTime),
		EndTime:    pick(info.EndTime, fallback.EndTime),
		Schedule:   pick(info.Schedule, fallback.Schedule),
		Teacher: TeacherInfo{
			Id:    pick(info.Teacher.Id, fallback.Teacher.Id),
			Name:  pick(info.Teacher.Name, fallback.Teacher.Name),
			Email: pick(info.Teacher.Email, fallback.Teacher.Email),
		},
	}
}
