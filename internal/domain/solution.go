package domain

// NodeDescriptor is one entry in a Solution's pipeline template: a node
// type tag, a name template (containing the literal token "{instanceId}"),
// and a parameter map whose values may reference "{instanceId}" or
// "${KEY}" placeholders resolved at build time.
type NodeDescriptor struct {
	NodeType   string            `json:"nodeType"`
	NameTemplate string          `json:"nameTemplate"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Solution is a reusable pipeline template: an ordered node descriptor
// list plus default parameter values, identified by a solution id.
type Solution struct {
	SolutionID      string            `json:"solutionId"`
	DisplayName     string            `json:"displayName"`
	Type            string            `json:"type"`
	IsDefault       bool              `json:"isDefault"`
	Nodes           []NodeDescriptor  `json:"nodes"`
	DefaultParams   map[string]string `json:"defaultParams,omitempty"`
}

func (s *Solution) Validate() error {
	if s.SolutionID == "" {
		return NewError(KindValidation, "missing solution id")
	}
	if len(s.Nodes) == 0 {
		return NewError(KindValidation, "solution has no nodes")
	}
	return nil
}
