package tasks

import (
	"errors"
	"path/filepath"
)

// ErrInvalidIdentifier is returned for class codes and student ids that
// could escape or collide on disk.
var ErrInvalidIdentifier = errors.New("invalid identifier")

const maxIdentifierLen = 64

// ValidateIdentifier returns name unchanged if it is 1-64 characters of
// [A-Za-z0-9_-].
func ValidateIdentifier(name string) (string, error) {
	if len(name) == 0 || len(name) > maxIdentifierLen {
		return "", ErrInvalidIdentifier
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return "", ErrInvalidIdentifier
		}
	}
	return name, nil
}

// Namespace identifies one student's task document within a class.
// The zero value is invalid; use NewNamespace.
type Namespace struct {
	classCode string
	studentID string
}

func NewNamespace(classCode, studentID string) (Namespace, error) {
	cc, err := ValidateIdentifier(classCode)
	if err != nil {
		return Namespace{}, err
	}
	sid, err := ValidateIdentifier(studentID)
	if err != nil {
		return Namespace{}, err
	}
	return Namespace{classCode: cc, studentID: sid}, nil
}

func (n Namespace) ClassCode() string { return n.classCode }
func (n Namespace) StudentID() string { return n.studentID }

func (n Namespace) String() string { return n.classCode + "/" + n.studentID }

const docExt = ".json"

// Resolver maps namespaces to document paths under a fixed base directory.
type Resolver struct {
	baseDir string
}

func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

func (r *Resolver) BaseDir() string { return r.baseDir }

// Path returns <base>/<class_code>/<student_id>.json, creating the class
// directory if needed.
func (r *Resolver) Path(ns Namespace) (string, error) {
	// Namespaces built outside NewNamespace (the zero value) fail here.
	if _, err := NewNamespace(ns.classCode, ns.studentID); err != nil {
		return "", err
	}
	dir := filepath.Join(r.baseDir, ns.classCode)
	if err := mkdirAll(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, ns.studentID+docExt), nil
}
