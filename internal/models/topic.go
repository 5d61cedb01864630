package models

import "time"

// Category is the content category understood by the search API.
type Category string

const (
	CategoryNews         Category = "news"
	CategoryResearch     Category = "research paper"
	CategoryCompany      Category = "company"
	CategoryGithub       Category = "github"
	CategoryTweet        Category = "tweet"
	CategoryPersonalSite Category = "personal site"
	CategoryPDF          Category = "pdf"
)

// Categories lists every supported category in declaration order.
var Categories = []Category{
	CategoryNews,
	CategoryResearch,
	CategoryCompany,
	CategoryGithub,
	CategoryTweet,
	CategoryPersonalSite,
	CategoryPDF,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// RecencyWindow is the maximum age of content to retrieve.
type RecencyWindow string

const (
	RecencyDay     RecencyWindow = "day"
	RecencyTwoDays RecencyWindow = "2days"
	RecencyWeek    RecencyWindow = "week"
	RecencyMonth   RecencyWindow = "month"
)

// DefaultRecency applies when a topic or tool call omits the window.
const DefaultRecency = RecencyTwoDays

var RecencyWindows = []RecencyWindow{RecencyDay, RecencyTwoDays, RecencyWeek, RecencyMonth}

func (r RecencyWindow) Valid() bool {
	for _, known := range RecencyWindows {
		if r == known {
			return true
		}
	}
	return false
}

// OrDefault returns r, or DefaultRecency when r is unset or unknown.
func (r RecencyWindow) OrDefault() RecencyWindow {
	if r.Valid() {
		return r
	}
	return DefaultRecency
}

// Cutoff returns the earliest publication time allowed by the window.
func (r RecencyWindow) Cutoff(now time.Time) time.Time {
	switch r.OrDefault() {
	case RecencyDay:
		return now.AddDate(0, 0, -1)
	case RecencyWeek:
		return now.AddDate(0, 0, -7)
	case RecencyMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -2)
	}
}

// Topic is a user-declared interest with its search configuration.
type Topic struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	SearchQueries []string      `json:"searchQueries"`
	Category      Category      `json:"category"`
	DateRange     RecencyWindow `json:"dateRange"`
	IsActive      bool          `json:"isActive"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// FirstQuery returns the primary search query, or "" when none is set.
func (t Topic) FirstQuery() string {
	if len(t.SearchQueries) == 0 {
		return ""
	}
	return t.SearchQueries[0]
}

// Interest is the label used when asking the LLM to judge relevance.
func (t Topic) Interest() string {
	return t.Name + ": " + t.Description
}

// ChatTurn is one prior message of the conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolResult records a tool invocation surfaced to the UI.
type ToolResult struct {
	Type       string `json:"type"`
	ToolName   string `json:"toolName"`
	ToolResult any    `json:"toolResult"`
}

// Reply is the assistant answer for one chat request.
type Reply struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	ToolResults []ToolResult `json:"toolResults"`
}
