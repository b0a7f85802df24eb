package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type emptyInput struct{}

type queueListInput struct {
	Status *string `json:"status,omitempty" jsonschema:"Filter by status: pending, approved, posted or failed. Omit for all."`
	Limit  *int    `json:"limit,omitempty"  jsonschema:"Maximum number of items to return (default 20)"`
}

type queueIDInput struct {
	ID int64 `json:"id" jsonschema:"The queue item ID"`
}

type queueAddInput struct {
	Platform     string  `json:"platform"                jsonschema:"Destination platform, e.g. x or linkedin"`
	Text         string  `json:"text"                    jsonschema:"The post text"`
	ScheduledFor *string `json:"scheduled_for,omitempty" jsonschema:"RFC 3339 time before which the item is not published"`
}

type generateInput struct {
	Platform    string            `json:"platform"               jsonschema:"Destination platform, e.g. x or linkedin"`
	ContentType *string           `json:"content_type,omitempty" jsonschema:"promotional, educational, engagement or announcement (default promotional)"`
	Context     map[string]string `json:"context,omitempty"      jsonschema:"Free-form hints for the writer, e.g. topic or audience"`
}

type postInput struct {
	QueueID  *int64  `json:"queue_id,omitempty" jsonschema:"Publish this queue item now, bypassing approval"`
	Platform *string `json:"platform,omitempty" jsonschema:"Destination platform when posting raw text"`
	Text     *string `json:"text,omitempty"     jsonschema:"Raw text to publish now"`
}

type knowledgeListInput struct {
	ActiveOnly *bool `json:"active_only,omitempty" jsonschema:"Only return active entries"`
}

type knowledgeAddInput struct {
	Category string `json:"category"           jsonschema:"Entry category, e.g. product, audience, voice"`
	Key      string `json:"key"                jsonschema:"Short name, unique within the category"`
	Value    string `json:"value"              jsonschema:"The fact itself"`
	Priority *int   `json:"priority,omitempty" jsonschema:"Higher priorities appear first in the writer's context (default 0)"`
}

type limitInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type tickInput struct {
	Kind string `json:"kind" jsonschema:"auto_publish, queue_flush or engagement"`
}
