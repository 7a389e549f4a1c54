package agents

import (
	"context"

	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
)

type itemsPrompt struct {
	system  string
	ask     string
	example []string
}

var factsPrompt = itemsPrompt{
	system: "You are a factual analyst.\n" +
		"Your task is to list neutral, verifiable facts relevant to the decision.\n\n" +
		"Rules:\n" +
		"- Output valid JSON only\n" +
		"- The JSON object MUST have exactly one key: 'items'\n" +
		"- 'items' MUST be a list of strings\n" +
		"- Each item MUST be a short factual statement (max 1 sentence)\n" +
		"- Do NOT include opinions, recommendations, or speculation\n" +
		"- Do NOT include assumptions or unknowns\n" +
		"- Do NOT include explanations or markdown\n",
	ask: "List only concrete facts that are relevant to this decision.",
	example: []string{
		"The current service handles about 200 requests per second at peak.",
		"The team has two engineers with production Go experience.",
	},
}

var proPrompt = itemsPrompt{
	system: "You analyze the benefits and upside of a decision.\n\n" +
		"Rules:\n" +
		"- Output valid JSON only\n" +
		"- The JSON object MUST have exactly one key: 'items'\n" +
		"- 'items' MUST be a list of strings\n" +
		"- Each item MUST describe one concrete benefit\n" +
		"- Each item MUST be concise (max 1 sentence)\n" +
		"- Do NOT include explanations, titles, or impact levels\n" +
		"- Do NOT include generic marketing language\n" +
		"- Do NOT include recommendations\n",
	ask: "List the concrete benefits of this decision.",
	example: []string{
		"A single static binary simplifies deployment.",
		"Lower memory use reduces hosting costs.",
	},
}

var conPrompt = itemsPrompt{
	system: "You analyze downsides, costs, and negative trade-offs of a decision.\n\n" +
		"Rules:\n" +
		"- Output valid JSON only\n" +
		"- The JSON object MUST have exactly one key: 'items'\n" +
		"- 'items' MUST be a list of strings\n" +
		"- Each item MUST describe one concrete downside or cost\n" +
		"- Each item MUST be concise (max 1 sentence)\n" +
		"- Do NOT include severity levels or scores\n" +
		"- Do NOT include explanations or mitigation\n" +
		"- Do NOT include recommendations\n",
	ask: "List the concrete downsides or costs of this decision.",
	example: []string{
		"The rewrite pauses feature work for a quarter.",
		"Existing libraries have to be replaced or wrapped.",
	},
}

var riskPrompt = itemsPrompt{
	system: "You identify potential risks and failure modes of a decision.\n\n" +
		"Rules:\n" +
		"- Output valid JSON only\n" +
		"- The JSON object MUST have exactly one key: 'items'\n" +
		"- 'items' MUST be a list of strings\n" +
		"- Each item MUST describe one realistic risk\n" +
		"- Each item MUST be concise (max 1 sentence)\n" +
		"- Do NOT include likelihood or impact scores\n" +
		"- Do NOT include mitigation strategies\n" +
		"- Do NOT include recommendations\n",
	ask: "List the main risks associated with this decision.",
	example: []string{
		"Behavior differences may surface only under production load.",
		"Key people may leave before the migration is finished.",
	},
}

// ItemsAgent produces a flat list of statements: facts, pros, cons or risks
type ItemsAgent struct {
	name   models.TaskName
	llm    llm.Client
	prompt itemsPrompt
}

func newItemsAgent(name models.TaskName, client llm.Client, prompt itemsPrompt) *ItemsAgent {
	return &ItemsAgent{name: name, llm: client, prompt: prompt}
}

func (a *ItemsAgent) Name() models.TaskName { return a.name }

func (a *ItemsAgent) Run(ctx context.Context, actx Context, inputs Inputs) (*Result, error) {
	return complete(ctx, a.llm, llm.JSONRequest{
		Task:    a.name,
		System:  a.prompt.system,
		User:    questionBlock(actx) + a.prompt.ask,
		Example: models.ItemsOutput{Task: a.name, Items: a.prompt.example},
	})
}
