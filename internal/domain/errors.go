package domain

import "errors"

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("queue is full")
)
