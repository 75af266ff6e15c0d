package expression

// NodeType represents the type of an AST node.
type NodeType int

const (
	NodeTypeLiteral    NodeType = iota // Literal value (string, int64, float64, bool, nil)
	NodeTypeVariable                   // Bare identifier
	NodeTypeMember                     // a.b
	NodeTypeIndex                      // a[b]
	NodeTypeList                       // [a, b]
	NodeTypeCall                       // range(3)
	NodeTypeComparison                 // Comparison expression
	NodeTypeArithmetic                 // + and -
	NodeTypeNegate                     // unary -
	NodeTypeLogical                    // Logical expression (AND, OR)
	NodeTypeNot                        // NOT expression
)

// String returns the string representation of the node type.
func (n NodeType) String() string {
	switch n {
	case NodeTypeLiteral:
		return "Literal"
	case NodeTypeVariable:
		return "Variable"
	case NodeTypeMember:
		return "Member"
	case NodeTypeIndex:
		return "Index"
	case NodeTypeList:
		return "List"
	case NodeTypeCall:
		return "Call"
	case NodeTypeComparison:
		return "Comparison"
	case NodeTypeArithmetic:
		return "Arithmetic"
	case NodeTypeNegate:
		return "Negate"
	case NodeTypeLogical:
		return "Logical"
	case NodeTypeNot:
		return "Not"
	default:
		return "Unknown"
	}
}

// Node represents a node in the AST.
type Node interface {
	nodeType() NodeType
}

// LiteralNode represents a literal value.
type LiteralNode struct {
	Value any
}

func (n *LiteralNode) nodeType() NodeType { return NodeTypeLiteral }

// VariableNode represents a bare identifier.
type VariableNode struct {
	Name string
}

func (n *VariableNode) nodeType() NodeType { return NodeTypeVariable }

// MemberNode represents dotted access, e.g. task.t1.
type MemberNode struct {
	Object Node
	Field  string
}

func (n *MemberNode) nodeType() NodeType { return NodeTypeMember }

// IndexNode represents subscript access, e.g. items[0].
type IndexNode struct {
	Object Node
	Index  Node
}

func (n *IndexNode) nodeType() NodeType { return NodeTypeIndex }

// ListNode represents a list literal.
type ListNode struct {
	Elements []Node
}

func (n *ListNode) nodeType() NodeType { return NodeTypeList }

// CallNode represents a call of a builtin function.
type CallNode struct {
	Name string
	Args []Node
}

func (n *CallNode) nodeType() NodeType { return NodeTypeCall }

// ComparisonNode represents a comparison expression.
type ComparisonNode struct {
	Left     Node
	Operator string // ==, !=, <, >, <=, >=, IN
	Right    Node
}

func (n *ComparisonNode) nodeType() NodeType { return NodeTypeComparison }

// ArithmeticNode represents + or -.
type ArithmeticNode struct {
	Left     Node
	Operator string
	Right    Node
}

func (n *ArithmeticNode) nodeType() NodeType { return NodeTypeArithmetic }

// NegateNode represents unary minus.
type NegateNode struct {
	Operand Node
}

func (n *NegateNode) nodeType() NodeType { return NodeTypeNegate }

// LogicalNode represents a logical expression (AND, OR).
type LogicalNode struct {
	Left     Node
	Operator string // AND, OR
	Right    Node
}

func (n *LogicalNode) nodeType() NodeType { return NodeTypeLogical }

// NotNode represents a NOT expression.
type NotNode struct {
	Operand Node
}

func (n *NotNode) nodeType() NodeType { return NodeTypeNot }

// ExpressionAST wraps the root node of an expression AST.
type ExpressionAST struct {
	Source string
	Root   Node
}
