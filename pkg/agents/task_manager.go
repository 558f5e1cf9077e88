package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
)

var (
	taskVerbRe     = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:schedule|add|create|remind(?:\s+me)?)(?:\s+a)?(?:\s+new)?(?:\s+task)?(?:\s+to)?[:\s]\s*`)
	taskNumberRe   = regexp.MustCompile(`#?(\d+)`)
	executeVerbsRe = regexp.MustCompile(`\b(execute|run|complete|finish)\b`)
	scheduleVerbRe = regexp.MustCompile(`\b(schedule|add|create|remind)\b`)
)

// TaskManager keeps a small in-process task list: schedule adds a
// pending task, execute completes one, report lists them. When the
// descriptor names a sequence, executing a task runs it.
type TaskManager struct {
	BaseAgent

	mu     sync.Mutex
	tasks  []*task
	nextID int
}

type task struct {
	id          int
	description string
	done        bool
	createdAt   time.Time
	completedAt time.Time
}

func NewTaskManager(cfg *config.AgentConfig) *TaskManager {
	return &TaskManager{BaseAgent: NewBaseAgent(cfg), nextID: 1}
}

func (a *TaskManager) Execute(ctx context.Context, input Input, svc Services) (*Output, error) {
	switch operation(input) {
	case "schedule":
		return a.schedule(input), nil
	case "execute":
		return a.execute(ctx, input, svc)
	default:
		return a.report(), nil
	}
}

// operation picks the verb: an explicit param wins, then the message.
// Execution verbs are checked before scheduling verbs so "run the
// scheduled task" executes.
func operation(input Input) string {
	if op, ok := input.Params["operation"].(string); ok && op != "" {
		return op
	}
	message := strings.ToLower(input.Message)
	if executeVerbsRe.MatchString(message) {
		return "execute"
	}
	if scheduleVerbRe.MatchString(message) {
		return "schedule"
	}
	return "report"
}

func (a *TaskManager) schedule(input Input) *Output {
	description, _ := input.Params["task"].(string)
	if description == "" {
		description = strings.TrimSpace(taskVerbRe.ReplaceAllString(input.Message, ""))
	}
	if description == "" {
		description = "untitled task"
	}

	a.mu.Lock()
	t := &task{id: a.nextID, description: description, createdAt: time.Now()}
	a.nextID++
	a.tasks = append(a.tasks, t)
	pending := a.pendingCount()
	a.mu.Unlock()

	return &Output{
		Text: fmt.Sprintf("Scheduled task #%d: %s. %d pending.", t.id, t.description, pending),
		Metadata: map[string]any{
			"operation": "schedule",
			"task_id":   t.id,
			"pending":   pending,
		},
	}
}

func (a *TaskManager) execute(ctx context.Context, input Input, svc Services) (*Output, error) {
	a.mu.Lock()
	target := a.findTarget(input.Message)
	if target == nil {
		a.mu.Unlock()
		return &Output{
			Text:     "There is no pending task to execute.",
			Metadata: map[string]any{"operation": "execute"},
		}, nil
	}
	target.done = true
	target.completedAt = time.Now()
	id, description := target.id, target.description
	a.mu.Unlock()

	text := fmt.Sprintf("Executed task #%d: %s.", id, description)
	if seq := a.Descriptor().Sequence; seq != "" {
		rendered, err := svc.RunSequence(ctx, seq, map[string]any{
			"task":    description,
			"task_id": strconv.Itoa(id),
		})
		if err != nil {
			return nil, fmt.Errorf("running sequence %q for task #%d: %w", seq, id, err)
		}
		text += " " + rendered
	}

	return &Output{
		Text: text,
		Metadata: map[string]any{
			"operation": "execute",
			"task_id":   id,
		},
	}, nil
}

// findTarget resolves which task to execute: an explicit number in the
// message, otherwise the oldest pending task. Caller holds the lock.
func (a *TaskManager) findTarget(message string) *task {
	if m := taskNumberRe.FindStringSubmatch(message); m != nil {
		id, _ := strconv.Atoi(m[1])
		for _, t := range a.tasks {
			if t.id == id && !t.done {
				return t
			}
		}
		return nil
	}
	for _, t := range a.tasks {
		if !t.done {
			return t
		}
	}
	return nil
}

func (a *TaskManager) report() *Output {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.tasks) == 0 {
		return &Output{
			Text:     "No tasks scheduled.",
			Metadata: map[string]any{"operation": "report", "total": 0},
		}
	}

	var b strings.Builder
	done := 0
	fmt.Fprintf(&b, "%d tasks:", len(a.tasks))
	for _, t := range a.tasks {
		status := "pending"
		if t.done {
			status = "done"
			done++
		}
		fmt.Fprintf(&b, " #%d %s (%s).", t.id, t.description, status)
	}

	return &Output{
		Text: b.String(),
		Metadata: map[string]any{
			"operation": "report",
			"total":     len(a.tasks),
			"done":      done,
			"pending":   len(a.tasks) - done,
		},
	}
}

// pendingCount assumes the caller holds the lock.
func (a *TaskManager) pendingCount() int {
	pending := 0
	for _, t := range a.tasks {
		if !t.done {
			pending++
		}
	}
	return pending
}

func (a *TaskManager) OnDestroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = nil
	return nil
}

var _ Agent = (*TaskManager)(nil)
