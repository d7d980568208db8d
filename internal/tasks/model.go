package tasks

// Task is one to-do item. DueDate is nil when the task has no due date.
type Task struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	DueDate   *string `json:"due_date"`
	Done      bool    `json:"done"`
	CreatedAt string  `json:"created_at"`
}

// Document is the persisted state of one namespace. Tasks are kept in
// insertion order; display order is computed by List.
type Document struct {
	NextID int64  `json:"next_id"`
	Tasks  []Task `json:"tasks"`
}

func emptyDocument() Document {
	return Document{NextID: 1, Tasks: []Task{}}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Done  *bool
	Title *string
	// DueDate is non-nil when the patch names due_date; "" clears it.
	DueDate *string
}

// createdAtLayout is UTC with microseconds and a literal Z.
const createdAtLayout = "2006-01-02T15:04:05.000000Z"
