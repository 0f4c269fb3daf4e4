package walker

// expr is a node of a parsed path expression.
type expr interface {
	String() string
}

// typeFilter is a leading type name ("Patient" in "Patient.name"). It keeps
// the focus when the focus is an instance of Type.
type typeFilter struct {
	Type string
}

func (e *typeFilter) String() string { return e.Type }

// member navigates to a named child of every item of Target. A nil Target
// navigates from the focus.
type member struct {
	Target expr
	Name   string
}

func (e *member) String() string {
	if e.Target == nil {
		return e.Name
	}
	return e.Target.String() + "." + e.Name
}

// call invokes a function on Target. Arg holds the argument: the criteria
// source for where(), the type name for as() and ofType(), the url for
// extension().
type call struct {
	Target expr
	Name   string
	Arg    string
}

func (e *call) String() string {
	s := e.Name + "(" + e.Arg + ")"
	if e.Target == nil {
		return s
	}
	return e.Target.String() + "." + s
}

// typeOp is "Operand as Type" or "Operand is Type".
type typeOp struct {
	Operand expr
	Op      string
	Type    string
}

func (e *typeOp) String() string {
	return "(" + e.Operand.String() + " " + e.Op + " " + e.Type + ")"
}

// union concatenates the results of its parts.
type union struct {
	Parts []expr
}

func (e *union) String() string {
	s := ""
	for i, p := range e.Parts {
		if i > 0 {
			s += " | "
		}
		s += p.String()
	}
	return s
}
