package tasks

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"time"
)

var ErrTitleRequired = errors.New("title is required")

// Repository is the per-namespace task list. NotFound is reported through
// the bool results, not as an error.
type Repository interface {
	List(ns Namespace) ([]Task, error)
	Create(ns Namespace, title string, dueDate *string) (Task, error)
	Update(ns Namespace, id int64, p Patch) (Task, bool, error)
	Delete(ns Namespace, id int64) (bool, error)
}

// FileRepo keeps one JSON document per namespace and rewrites it whole on
// every mutation.
type FileRepo struct {
	resolver *Resolver
	docs     *DocumentStore
	now      func() time.Time
}

func NewFileRepo(resolver *Resolver, docs *DocumentStore) *FileRepo {
	return &FileRepo{
		resolver: resolver,
		docs:     docs,
		now:      time.Now,
	}
}

func (r *FileRepo) load(ns Namespace) (string, Document, error) {
	path, err := r.resolver.Path(ns)
	if err != nil {
		return "", Document{}, err
	}
	doc, err := r.docs.Load(path)
	if err != nil {
		return "", Document{}, err
	}
	return path, doc, nil
}

// List returns open tasks before done ones, dated before undated, earlier
// due dates first, then by id.
func (r *FileRepo) List(ns Namespace) ([]Task, error) {
	_, doc, err := r.load(ns)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(doc.Tasks)
	slices.SortStableFunc(out, compareTasks)
	return out, nil
}

func compareTasks(a, b Task) int {
	if a.Done != b.Done {
		if !a.Done {
			return -1
		}
		return 1
	}
	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate != nil:
		if c := strings.Compare(*a.DueDate, *b.DueDate); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Create appends a new open task and persists the document.
func (r *FileRepo) Create(ns Namespace, title string, dueDate *string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, ErrTitleRequired
	}

	path, doc, err := r.load(ns)
	if err != nil {
		return Task{}, err
	}

	t := Task{
		ID:        doc.NextID,
		Title:     title,
		DueDate:   dueDate,
		Done:      false,
		CreatedAt: r.now().UTC().Format(createdAtLayout),
	}
	doc.Tasks = append(doc.Tasks, t)
	doc.NextID++

	if err := r.docs.Save(path, doc); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Update applies p to the task with the given id. The document is saved
// whenever the task exists, even for an empty patch.
func (r *FileRepo) Update(ns Namespace, id int64, p Patch) (Task, bool, error) {
	path, doc, err := r.load(ns)
	if err != nil {
		return Task{}, false, err
	}

	idx := slices.IndexFunc(doc.Tasks, func(t Task) bool { return t.ID == id })
	if idx < 0 {
		return Task{}, false, nil
	}

	t := &doc.Tasks[idx]
	if p.Done != nil {
		t.Done = *p.Done
	}
	if p.Title != nil {
		// A blank title is ignored rather than rejected.
		if title := strings.TrimSpace(*p.Title); title != "" {
			t.Title = title
		}
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			due := *p.DueDate
			t.DueDate = &due
		}
	}

	if err := r.docs.Save(path, doc); err != nil {
		return Task{}, false, err
	}
	return *t, true, nil
}

// Delete removes the task with the given id. Nothing is written when no
// task matches.
func (r *FileRepo) Delete(ns Namespace, id int64) (bool, error) {
	path, doc, err := r.load(ns)
	if err != nil {
		return false, err
	}

	before := len(doc.Tasks)
	doc.Tasks = slices.DeleteFunc(doc.Tasks, func(t Task) bool { return t.ID == id })
	if len(doc.Tasks) == before {
		return false, nil
	}

	if err := r.docs.Save(path, doc); err != nil {
		return false, err
	}
	return true, nil
}
