// Package strategy selects a decomposition approach for a task and builds the
// prompt sent to the reasoning provider.
package strategy

import (
	"fmt"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// Strategy is a named decomposition approach.
type Strategy interface {
	// Name returns the strategy tag recorded on the tree.
	Name() models.Strategy
	// Keywords returns the lower-case terms that vote for this strategy.
	Keywords() []string
	// Rationale describes when the strategy applies.
	Rationale() string
	// BuildPrompt renders the reasoning prompt for a task.
	BuildPrompt(task string, maxSubtasks int) string
}

// builtin is a keyword-driven Strategy with a fixed framing paragraph.
type builtin struct {
	name      models.Strategy
	keywords  []string
	rationale string
	framing   string
}

func (b *builtin) Name() models.Strategy { return b.name }
func (b *builtin) Keywords() []string    { return b.keywords }
func (b *builtin) Rationale() string     { return b.rationale }

func (b *builtin) BuildPrompt(task string, maxSubtasks int) string {
	return fmt.Sprintf(promptTemplate, b.framing, task, maxSubtasks, typeList())
}

// Functional splits work by user-visible capability.
func Functional() Strategy {
	return &builtin{
		name: models.StrategyFunctional,
		keywords: []string{
			"feature", "features", "functionality", "capability", "user", "users",
			"endpoint", "command", "screen", "page", "workflow", "add", "implement",
		},
		rationale: "task describes distinct capabilities that can be built and verified independently",
		framing:   "Decompose by FUNCTION: one subtask per distinct capability or behavior the user will observe. Shared groundwork comes first; each capability depends only on the groundwork it needs.",
	}
}

// DataFlow splits work along the path data takes through the system.
func DataFlow() Strategy {
	return &builtin{
		name: models.StrategyDataFlow,
		keywords: []string{
			"data", "pipeline", "etl", "ingest", "ingestion", "transform", "stream",
			"parse", "import", "export", "sync", "batch", "queue", "etl job",
		},
		rationale: "task moves or transforms data through a sequence of processing steps",
		framing:   "Decompose by DATA FLOW: follow data from its sources through each transformation to its sinks. Each subtask owns one step; a step depends on the steps that produce its input.",
	}
}

// Architectural splits work by system layer or component.
func Architectural() Strategy {
	return &builtin{
		name: models.StrategyArchitectural,
		keywords: []string{
			"architecture", "architect", "service", "services", "microservice", "layer",
			"module", "component", "database", "schema", "api", "backend", "frontend",
			"infrastructure", "refactor", "migrate", "migration", "redesign",
		},
		rationale: "task spans several system layers or components with clear interfaces",
		framing:   "Decompose by ARCHITECTURE: one subtask per layer or component (storage, domain logic, interfaces, infrastructure). Define contracts before the components that implement or consume them.",
	}
}

// Temporal splits work into ordered phases.
func Temporal() Strategy {
	return &builtin{
		name: models.StrategyTemporal,
		keywords: []string{
			"first", "then", "after", "before", "finally", "phase", "phases", "step",
			"steps", "stage", "rollout", "release", "schedule", "milestone", "sequence",
		},
		rationale: "task is naturally described as ordered phases or milestones",
		framing:   "Decompose by TIME: order the work into phases. Subtasks within a phase are independent; each phase depends on the one before it.",
	}
}

// Hybrid mixes the other approaches. It has no keywords and is the fallback.
func Hybrid() Strategy {
	return &builtin{
		name:      models.StrategyHybrid,
		rationale: "no single decomposition axis dominates the task",
		framing:   "Decompose using whichever split is most natural for each part of the task, mixing functional, data-flow, architectural and phased boundaries as needed.",
	}
}

const promptTemplate = `%s

Task:
%s

Return ONLY a JSON array (no other text) of at most %d subtasks with this exact structure:
[
  {
    "id": "1",
    "title": "Short subtask title",
    "description": "What must be done and how to tell it is done",
    "type": "%s",
    "complexity": "trivial|simple|moderate|complex|extreme",
    "estimated_tokens": 2500,
    "estimated_duration": 15,
    "priority": 5,
    "parallelizable": true,
    "dependencies": []
  }
]

Rules:
- Use sequential ids "1", "2", "3", ... in array order
- "dependencies" lists the ids of subtasks that must finish first
- Only add a dependency when the subtask truly cannot start without the other's output
- Never depend on a later subtask in a way that creates a cycle
- Higher priority means more important; use 1-10
- Set "parallelizable" to false only when the subtask must run alone`

func typeList() string {
	s := ""
	for i, t := range models.AllSubtaskTypes {
		if i > 0 {
			s += "|"
		}
		s += string(t)
	}
	return s
}
