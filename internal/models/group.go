package models

// Group is a club or team that regular members log hours against.
type Group struct {
	ID   int64
	Name string
}
