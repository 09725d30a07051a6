package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"attendance-backend/internal/storage"
)

var (
	ErrInvalidPhotoKey = errors.New("invalid roster photo key")
	ErrNotAVideo       = errors.New("object is not a session video")
)

const (
	VideoPrefix    = "videos/"
	videoExtension = ".mp4"
	photoPattern   = "student_"
)

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type Member struct {
	StudentId int64
	Name      string
	Email     string
	PhotoKey  string
	PhotoURL  string
}

type Roster struct {
	Members []Member
	Skipped []string
}

func (r *Roster) Ids() []int64 {
	ids := make([]int64, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.StudentId)
	}
	return ids
}

func (r *Roster) Lookup(studentId int64) (Member, bool) {
	for _, m := range r.Members {
		if m.StudentId == studentId {
			return m, true
		}
	}
	return Member{}, false
}

// ParsePhotoKey extracts the student id from keys like
// photos/student_10001.jpg.
func ParsePhotoKey(key string) (int64, error) {
	name := path.Base(key)
	ext := strings.ToLower(path.Ext(name))
	if !photoExtensions[ext] {
		return 0, fmt.Errorf("%w: %s: unsupported extension", ErrInvalidPhotoKey, key)
	}

	stem := strings.TrimSuffix(name, path.Ext(name))
	if !strings.HasPrefix(stem, photoPattern) {
		return 0, fmt.Errorf("%w: %s: expected %s<id>", ErrInvalidPhotoKey, key, photoPattern)
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(stem, photoPattern), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %s: student id is not a number", ErrInvalidPhotoKey, key)
	}
	return id, nil
}

type Loader struct {
	Store       storage.ObjectStore
	Bucket      string
	PhotoPrefix string
	EmailDomain string
}

// Load lists the roster photos and returns one member per distinct student
// id, ordered by id. Keys that do not follow the photo naming scheme are
// skipped and reported in Roster.Skipped.
func (l *Loader) Load(ctx context.Context) (*Roster, error) {
	objects, err := l.Store.ListObjects(ctx, l.PhotoPrefix)
	if err != nil {
		return nil, fmt.Errorf("error listing roster photos under '%s': %w", l.PhotoPrefix, err)
	}

	roster := &Roster{}
	seen := make(map[int64]bool)

	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, "/") {
			continue
		}

		id, err := ParsePhotoKey(obj.Name)
		if err != nil {
			slog.Warn("skipping roster photo", "key", obj.Name, "error", err)
			roster.Skipped = append(roster.Skipped, obj.Name)
			continue
		}
		if seen[id] {
			slog.Warn("duplicate roster photo", "key", obj.Name, "student_id", id)
			continue
		}
		seen[id] = true

		roster.Members = append(roster.Members, l.member(id, obj.Name))
	}

	sort.Slice(roster.Members, func(i, j int) bool { return roster.Members[i].StudentId < roster.Members[j].StudentId })

	slog.Info("loaded roster", "prefix", l.PhotoPrefix, "students", len(roster.Members), "skipped", len(roster.Skipped))

	return roster, nil
}

func (l *Loader) member(id int64, key string) Member {
	domain := l.EmailDomain
	if domain == "" {
		domain = "university.edu"
	}
	return Member{
		StudentId: id,
		Name:      fmt.Sprintf("Student %d", id),
		Email:     fmt.Sprintf("student%d@%s", id, domain),
		PhotoKey:  key,
		PhotoURL:  fmt.Sprintf("s3://%s/%s", l.Bucket, key),
	}
}

// VideoRecord identifies one recorded class session derived from its video
// key, e.g. videos/record_001.mp4 is record "record_001" and session
// "session_record_001".
type VideoRecord struct {
	VideoKey   string
	RecordName string
	SessionId  string
}

func ParseVideoKey(key string) (VideoRecord, error) {
	if !strings.HasPrefix(key, VideoPrefix) {
		return VideoRecord{}, fmt.Errorf("%w: %s is not under %s", ErrNotAVideo, key, VideoPrefix)
	}

	name := strings.TrimPrefix(key, VideoPrefix)
	if name == "" || strings.Contains(name, "/") {
		return VideoRecord{}, fmt.Errorf("%w: %s is not a file directly under %s", ErrNotAVideo, key, VideoPrefix)
	}

	ext := path.Ext(name)
	if !strings.EqualFold(ext, videoExtension) {
		return VideoRecord{}, fmt.Errorf("%w: %s: expected a %s file", ErrNotAVideo, key, videoExtension)
	}

	record := strings.TrimSuffix(name, ext)
	if record == "" {
		return VideoRecord{}, fmt.Errorf("%w: %s has no record name", ErrNotAVideo, key)
	}

	return VideoRecord{
		VideoKey:   key,
		RecordName: record,
		SessionId:  SessionIdForRecord(record),
	}, nil
}

func SessionIdForRecord(record string) string {
	return "session_" + record
}
