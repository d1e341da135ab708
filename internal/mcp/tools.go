package mcp

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolDefinitions contains all available MCP tools
var ToolDefinitions = []Tool{
	{
		Name:        "get_recent_correspondence",
		Description: "Get the most recent Gmail messages exchanged with a contact across every authorized account, newest first.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"email": map[string]interface{}{
					"type":        "string",
					"description": "Contact email address",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"enum":        []int{5, 10, 20, 50},
					"description": "Maximum number of messages (default: the configured email limit)",
				},
			},
			"required": []string{"email"},
		},
	},
	{
		Name:        "list_accounts",
		Description: "List linked Gmail accounts and whether each one is authorized.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
	{
		Name:        "get_settings",
		Description: "Get the cache duration in minutes and the per-contact email limit.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
	{
		Name:        "update_settings",
		Description: "Update the cache duration and/or email limit. Unsupported values fall back to the defaults.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"cache_duration": map[string]interface{}{
					"type":        "integer",
					"enum":        []int{5, 15, 30, 60},
					"description": "Minutes a correspondence lookup stays cached",
				},
				"email_limit": map[string]interface{}{
					"type":        "integer",
					"enum":        []int{5, 10, 20, 50},
					"description": "Messages shown per contact",
				},
			},
		},
	},
	{
		Name:        "clear_cache",
		Description: "Drop every cached correspondence lookup so the next request queries Gmail.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}
