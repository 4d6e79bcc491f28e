package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/dataset"
)

const contextPrefix = "Additional context from our search index:\n"

// Assembler builds the conversation sent to the model. It is safe for
// concurrent use once constructed.
type Assembler struct {
	Schema   dataset.Schema
	Location *time.Location
	Now      func() time.Time
}

// NewAssembler resolves "today" in the named IANA time zone.
func NewAssembler(timeZone string) (*Assembler, error) {
	location, err := time.LoadLocation(strings.TrimSpace(timeZone))
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
	}
	return &Assembler{
		Schema:   dataset.Purchasing(),
		Location: location,
		Now:      time.Now,
	}, nil
}

// Assemble returns the instructions, the optional search context and then the
// caller messages in their original order. The instructions are skipped when
// the caller already opened with a system message. messages is not modified.
func (a *Assembler) Assemble(messages []Message, docs []Document) []Message {
	out := make([]Message, 0, len(messages)+2)
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		out = append(out, Message{Role: RoleSystem, Content: a.SystemPrompt()})
	}
	if block := contextBlock(docs); block != "" {
		out = append(out, Message{Role: RoleSystem, Content: contextPrefix + block})
	}
	return append(out, messages...)
}

func contextBlock(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n")
}

func (a *Assembler) today() string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	location := a.Location
	if location == nil {
		location = time.UTC
	}
	return now().In(location).Format(time.DateOnly)
}

// SystemPrompt renders the instruction message for the current date.
func (a *Assembler) SystemPrompt() string {
	schema := a.Schema
	if len(schema.Tables) == 0 {
		schema = dataset.Purchasing()
	}

	var b strings.Builder
	b.WriteString("You are an AI assistant specialized in assisting SQL users. You are capable of creating SQL statements that will return information to answer the users questions.\n")
	b.WriteString("---\n")
	b.WriteString("The data is stored in a relational database and is structured in the following schema:\n")
	b.WriteString("Table\tDescription\n")
	for _, table := range schema.Tables {
		fmt.Fprintf(&b, "%s\t%s\n", table.Name, table.Description)
	}
	b.WriteString("\nFull list of all TABLE COLUMNS with their data types and descriptions:\n")
	b.WriteString("Table.Column\tData Type\tDescription\n")
	for _, table := range schema.Tables {
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "%s.%s\t%s\t%s\n", table.Name, column.Name, column.Type, column.Description)
		}
	}
	b.WriteString("\nTable.Column relationships:\n")
	for i, rel := range schema.Relationships {
		fmt.Fprintf(&b, "%d. %s to %s\n", i+1, rel.From, rel.To)
	}
	b.WriteString("---\n")
	b.WriteString("Process:\n")
	b.WriteString("1. Engage the user in a conversation and inquire what they would like to know about the data stored in given Tables and Columns.\n")
	b.WriteString("2. If the question is unclear, not precise or cannot be answered with the provided tables and columns ask the user for clarification.\n")
	b.WriteString("3. Remember to consider the entire conversation history to maintain context.\n")
	b.WriteString("\nResponse:\n")
	b.WriteString("Once there is enough information available to build an SQL statement that will answer the user's question about the data in database respond with an explanation and the SQL statement in JSON format following the example provided.\n")
	b.WriteString("---\n")
	b.WriteString("Example of a user question: what providers exist on my data?\n")
	b.WriteString("Your Response:\n")
	b.WriteString("We want to retrieve all the providers that exist on our database.\n")
	fmt.Fprintf(&b, "{\n  %q: \"SELECT * FROM %s\"\n}\n", SQLKey, dataset.TableProveedor)
	b.WriteString("This query will return all the providers.\n")
	b.WriteString("---\n")
	b.WriteString("Further instructions:\n")
	b.WriteString("Pay attention to the data types! If checking if a VARCHAR column is empty you must use, for example, EMAIL = '' and not EMAIL = NULL.\n")
	b.WriteString("Only use the date format YYYY-MM-DD, example: 2023-12-31.\n")
	if dates := schema.DateColumns(); len(dates) > 0 {
		fmt.Fprintf(&b, "In case a date column (%s) is part of the result, order by that column.\n", strings.Join(dates, ", "))
	}
	fmt.Fprintf(&b, "Never choose more than %d \"Table.Column\" combinations in the SELECT statement to keep the results readable.\n", MaxSelectColumns)
	fmt.Fprintf(&b, "Today is: %s", a.today())
	return b.String()
}
