package reasoning

import (
	"context"
	"fmt"
	"strings"

	"tabula/internal/llm"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

const thoughtSystemPrompt = `You are deciding the next step toward answering a user's question using their stored knowledge.
Reply with a JSON object:
{"thought": "what you concluded from the context",
 "action": "answer" or "search",
 "tool_name": "semantic_search" (only when action is "search"),
 "tool_input": "the search query" (only when action is "search")}

Choose "answer" when the context is enough to answer the question.
Choose "search" only when a specific piece of information is missing, and make tool_input a focused query for it.`

// Loop runs bounded think-act-observe reasoning over a user's question.
//
// Every pass either terminates with an answer decision or executes one search
// and loops. The loop is bounded three ways: the iteration cap, a guard that
// refuses to run the same search twice, and a parser that turns unreadable
// model output into an answer decision. The step trace never exceeds
// maxIterations plus the one forced closing step.
type Loop struct {
	llm           llm.LLM
	tools         *Registry
	maxIterations int
	log           *logger.Logger
}

// NewLoop creates a Loop.
func NewLoop(client llm.LLM, tools *Registry, maxIterations int, log *logger.Logger) *Loop {
	return &Loop{
		llm:           client,
		tools:         tools,
		maxIterations: maxIterations,
		log:           log,
	}
}

// Result is what a finished reasoning loop produces.
type Result struct {
	// Steps is the executed trace, at most maxIterations+1 entries.
	Steps []models.ReasoningStep
	// Context is the initial context plus everything the searches found.
	Context string
}

// Run executes the loop for a question with the given starting context.
func (l *Loop) Run(ctx context.Context, userID, task, contextText string) (*Result, error) {
	steps := make([]models.ReasoningStep, 0, l.maxIterations+1)
	seenQueries := make(map[string]struct{})

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		decision := l.decide(ctx, task, contextText, steps, iteration)

		if !decision.Valid() {
			// A search without a usable query cannot be executed. The
			// thought still stands, so close with it instead of guessing.
			steps = append(steps, models.ReasoningStep{
				Iteration:   iteration,
				Thought:     decision.Thought,
				Action:      models.ActionAnswer,
				Observation: "search requested without a usable query, answering with current context",
			})
			break
		}

		if decision.Action == string(models.ActionAnswer) {
			steps = append(steps, models.ReasoningStep{
				Iteration:   iteration,
				Thought:     decision.Thought,
				Action:      models.ActionAnswer,
				Observation: "ready to answer",
			})
			break
		}

		normalized := normalizeQuery(decision.ToolInput)
		if _, seen := seenQueries[normalized]; seen {
			// Repeating a search cannot add information, so stop here.
			steps = append(steps, models.ReasoningStep{
				Iteration:   iteration,
				Thought:     decision.Thought,
				Action:      models.ActionAnswer,
				Observation: fmt.Sprintf("query '%s' was already executed, answering with current context", decision.ToolInput),
			})
			break
		}
		seenQueries[normalized] = struct{}{}

		tool := l.tools.Get(decision.ToolName)
		observation, err := tool.Run(ctx, userID, decision.ToolInput)
		if err != nil {
			l.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "tool_error"}).
				Warn(fmt.Sprintf("tool '%s' failed", tool.Name()))
			observation = fmt.Sprintf("search failed: %v", err)
		} else {
			contextText += "\n" + observation
		}

		steps = append(steps, models.ReasoningStep{
			Iteration:   iteration,
			Thought:     decision.Thought,
			Action:      models.ActionSearch,
			ToolName:    tool.Name(),
			ToolInput:   decision.ToolInput,
			Observation: observation,
		})
	}

	// Every iteration was spent searching; close the trace explicitly.
	if len(steps) == 0 || steps[len(steps)-1].Action != models.ActionAnswer {
		steps = append(steps, models.ReasoningStep{
			Iteration:   len(steps) + 1,
			Thought:     "iteration limit reached, answering with gathered context",
			Action:      models.ActionAnswer,
			Observation: "ready to answer",
		})
	}

	l.log.WithPayload(map[string]interface{}{"steps": len(steps)}).Info("reasoning loop finished")
	return &Result{Steps: steps, Context: contextText}, nil
}

// decide asks the model for the next step. Structured output is tried first;
// on failure the free-text reply is parsed heuristically, and if the model
// cannot be reached at all the loop falls back to answering.
func (l *Loop) decide(ctx context.Context, task, contextText string, steps []models.ReasoningStep, iteration int) *Decision {
	prompt := buildThoughtPrompt(task, contextText, steps, iteration)

	raw, err := l.llm.CompleteJSON(ctx, thoughtSystemPrompt, prompt)
	if err != nil {
		l.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "llm_error"}).
			Warn("structured step completion failed, retrying as free text")
		raw, err = l.llm.Complete(ctx, thoughtSystemPrompt, prompt)
	}
	if err != nil {
		l.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "llm_error"}).
			Error("step completion failed, answering with current context")
		return &Decision{
			Thought: "model unavailable, answering with current context",
			Action:  string(models.ActionAnswer),
		}
	}
	return ParseDecision(raw)
}

func buildThoughtPrompt(task, contextText string, steps []models.ReasoningStep, iteration int) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(task)
	sb.WriteString("\n\nKnown context:\n")
	if strings.TrimSpace(contextText) == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(contextText)
		sb.WriteString("\n")
	}

	if len(steps) > 0 {
		sb.WriteString("\nPrevious steps:\n")
		for _, step := range steps {
			sb.WriteString(fmt.Sprintf("%d. thought: %s\n   action: %s", step.Iteration, step.Thought, step.Action))
			if step.ToolInput != "" {
				sb.WriteString(fmt.Sprintf(" (query: %s)", step.ToolInput))
			}
			sb.WriteString(fmt.Sprintf("\n   observation: %s\n", step.Observation))
		}
	}

	sb.WriteString(fmt.Sprintf("\nThis is step %d. Decide the next action.", iteration))
	return sb.String()
}
