package types

import (
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// TaskContext is created for every task dispatch and owned by it.
type TaskContext struct {
	Task      *Task
	Locals    map[string]any
	Outputs   map[string]any
	Status    TaskStatus
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// NewTaskContext 创建任务上下文，locals 来自已解析的 inputs
func NewTaskContext(task *Task, locals map[string]any) *TaskContext {
	if locals == nil {
		locals = make(map[string]any)
	}
	return &TaskContext{
		Task:   task,
		Locals: locals,
		Status: TaskStatusPending,
	}
}

// Name returns the task name.
func (c *TaskContext) Name() string {
	if c.Task == nil {
		return ""
	}
	return c.Task.Name
}

// Start 标记开始执行
func (c *TaskContext) Start() {
	c.StartTime = time.Now()
}

// Succeed 标记执行成功
func (c *TaskContext) Succeed(outputs map[string]any) {
	c.EndTime = time.Now()
	c.Status = TaskStatusSuccess
	c.Outputs = outputs
}

// Fail 标记执行失败
func (c *TaskContext) Fail(err error) {
	c.EndTime = time.Now()
	c.Status = TaskStatusFailed
	c.Err = err
}

// Duration returns how long the task ran.
func (c *TaskContext) Duration() time.Duration {
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}

// Snapshot returns locals merged with outputs, outputs winning.
func (c *TaskContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Locals)+len(c.Outputs))
	for k, v := range c.Locals {
		out[k] = v
	}
	for k, v := range c.Outputs {
		out[k] = v
	}
	return out
}
