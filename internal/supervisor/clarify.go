package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoferino/manda/pkg/schema"
)

// ClarifySpecialist is the built-in handler for ambiguous queries. Unlike
// the domain specialists it needs no model backend; it asks the user to
// narrow the question, echoing what was understood so far.
type ClarifySpecialist struct{}

// NewClarifySpecialist creates the built-in clarify handler.
func NewClarifySpecialist() *ClarifySpecialist {
	return &ClarifySpecialist{}
}

func (s *ClarifySpecialist) ID() schema.SpecialistID {
	return schema.SpecialistClarify
}

func (s *ClarifySpecialist) Execute(_ context.Context, req Request) (*schema.SpecialistResult, error) {
	var b strings.Builder
	b.WriteString("I need a bit more detail to answer that well.")
	if req.Classification.Domain != "" && req.Classification.Domain != "general" {
		fmt.Fprintf(&b, " It looks like a %s question.", req.Classification.Domain)
	}
	b.WriteString(" Could you name the specific document, metric, or entity you are asking about?")

	return &schema.SpecialistResult{
		Content:    b.String(),
		Confidence: 1.0, // the clarification itself is certain, the answer is not
	}, nil
}
