package astrodb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/schema"
)

// Comparator selects how a field value relates to a literal.
type Comparator uint8

const (
	// LT matches values strictly below the literal.
	LT Comparator = iota
	// GT matches values strictly above the literal.
	GT
	// EQ matches values equal to the literal.
	EQ
	// NE matches values different from the literal.
	NE
)

func (c Comparator) String() string {
	switch c {
	case LT:
		return "<"
	case GT:
		return ">"
	case EQ:
		return "=="
	case NE:
		return "!="
	default:
		return fmt.Sprintf("comparator(%d)", uint8(c))
	}
}

// Operator combines predicates.
type Operator uint8

const (
	// AND matches records satisfying every folded predicate.
	AND Operator = iota
	// OR matches records satisfying at least one folded predicate.
	OR
)

func (o Operator) String() string {
	if o == OR {
		return "or"
	}
	return "and"
}

// Search is a stack-built boolean expression over one table's record
// fields. AddComparator pushes a predicate; AddOperator folds the
// entire current stack into one node. Execute requires exactly one
// node and evaluates it against the records an ObjectSet selected.
//
// A Search is not safe for concurrent use.
type Search struct {
	table *Table
	stack []searchNode

	hits    *roaring.Bitmap
	refs    []model.RowID
	matches int
}

// NewSearch creates an empty search over t.
func NewSearch(t *Table) *Search {
	return &Search{table: t}
}

// Depth returns the current expression stack depth.
func (s *Search) Depth() int { return len(s.stack) }

// AddComparator pushes the predicate "field cmp literal". The literal
// is raw text, interpreted by the field's type: numeric fields parse
// it now and compare against the stored value (head angles are stored
// in radians), string fields compare lexicographically. For EQ and NE
// on string fields a literal containing '*' matches by the prefix
// before the first '*'.
func (s *Search) AddComparator(symbol string, cmp Comparator, literal string) error {
	if cmp > NE {
		return &ErrConstraint{Reason: fmt.Sprintf("invalid comparator %d", uint8(cmp))}
	}

	sch := s.table.Schema()
	if sch == nil {
		return &ErrImportFailure{State: s.table.State(), cause: errNotQueryable}
	}

	f, ok := sch.FieldBySymbol(symbol)
	if !ok {
		return &ErrUnknownField{Symbol: symbol}
	}

	n := &compareNode{field: f, cmp: cmp}

	switch {
	case f.Type == schema.TypeSign:
		// A sign column has no value of its own; it only flips its
		// group's destination.
		return &ErrConstraint{Reason: fmt.Sprintf("field %q of type %s is not comparable", symbol, f.Type)}
	case f.Type.Numeric() || f.Type.GroupComponent():
		v, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return fmt.Errorf("%w: literal %q for numeric field %q", ErrConversion, literal, symbol)
		}
		n.numeric = true
		n.num = v
	case f.Type == schema.TypeString || f.Type == schema.TypeDesignation:
		if i := strings.IndexByte(literal, '*'); i >= 0 && (cmp == EQ || cmp == NE) {
			n.prefix = true
			n.str = literal[:i]
		} else {
			n.str = literal
		}
	default:
		return &ErrConstraint{Reason: fmt.Sprintf("field %q of type %s is not comparable", symbol, f.Type)}
	}

	s.stack = append(s.stack, n)
	return nil
}

// AddOperator folds the entire current stack into one node, combining
// the predicates left to right. Folding a single node is a no-op;
// folding an empty stack is an error.
func (s *Search) AddOperator(op Operator) error {
	if op > OR {
		return &ErrConstraint{Reason: fmt.Sprintf("invalid operator %d", uint8(op))}
	}
	if len(s.stack) == 0 {
		return &ErrIncompleteExpression{Depth: 0}
	}
	if len(s.stack) == 1 {
		return nil
	}

	children := make([]searchNode, len(s.stack))
	copy(children, s.stack)
	s.stack = s.stack[:0]
	s.stack = append(s.stack, &foldNode{op: op, children: children})
	return nil
}

// Execute evaluates the expression against every record in set, in
// set order, and returns the match count. The set is never mutated;
// Hits materializes the matching references afterwards.
func (s *Search) Execute(ctx context.Context, set *ObjectSet) (int, error) {
	start := time.Now()

	matches, err := s.execute(ctx, set)

	evaluated := 0
	if set != nil {
		evaluated = set.Count()
	}
	s.table.db.metrics.RecordSearch(matches, time.Since(start), err)
	s.table.db.logger.LogSearch(ctx, s.table.id.String(), evaluated, matches, err)

	return matches, err
}

func (s *Search) execute(ctx context.Context, set *ObjectSet) (int, error) {
	if len(s.stack) != 1 {
		return 0, &ErrIncompleteExpression{Depth: len(s.stack)}
	}
	if set == nil {
		return 0, &ErrConstraint{Reason: "nil object set"}
	}
	if set.table != s.table {
		return 0, &ErrConstraint{Reason: "object set is bound to a different table"}
	}

	st, _, err := s.table.snapshot()
	if err != nil {
		return 0, err
	}

	node := s.stack[0]
	hits := roaring.New()
	matches := 0

	for i, ref := range set.refs {
		if i&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		v, ok := st.Record(ref)
		if !ok {
			continue
		}
		if node.eval(v) {
			hits.Add(uint32(i))
			matches++
		}
	}

	s.hits = hits
	s.refs = set.refs
	s.matches = matches
	return matches, nil
}

// MatchCount returns the match count of the last Execute.
func (s *Search) MatchCount() int { return s.matches }

// Hits returns the matching record references of the last Execute, in
// set order.
func (s *Search) Hits() []model.RowID {
	if s.hits == nil {
		return nil
	}

	out := make([]model.RowID, 0, s.hits.GetCardinality())
	it := s.hits.Iterator()
	for it.HasNext() {
		out = append(out, s.refs[it.Next()])
	}
	return out
}

// Reset clears the expression stack and the last result.
func (s *Search) Reset() {
	s.stack = s.stack[:0]
	s.hits = nil
	s.refs = nil
	s.matches = 0
}

type searchNode interface {
	eval(v record.View) bool
}

// compareNode is a leaf predicate: one field against one literal.
type compareNode struct {
	field   *schema.Field
	cmp     Comparator
	num     float64
	str     string
	numeric bool
	prefix  bool
}

func (n *compareNode) eval(v record.View) bool {
	if n.numeric {
		val := numericValue(v, n.field)
		switch n.cmp {
		case LT:
			return val < n.num
		case GT:
			return val > n.num
		case EQ:
			return val == n.num
		case NE:
			return val != n.num
		}
		return false
	}

	sv := stringValue(v, n.field)
	if n.prefix {
		matched := strings.HasPrefix(sv, n.str)
		if n.cmp == NE {
			return !matched
		}
		return matched
	}
	switch n.cmp {
	case LT:
		return sv < n.str
	case GT:
		return sv > n.str
	case EQ:
		return sv == n.str
	case NE:
		return sv != n.str
	}
	return false
}

// foldNode combines child predicates with one operator, short-circuit,
// in push order.
type foldNode struct {
	op       Operator
	children []searchNode
}

func (n *foldNode) eval(v record.View) bool {
	if n.op == AND {
		for _, c := range n.children {
			if !c.eval(v) {
				return false
			}
		}
		return true
	}
	for _, c := range n.children {
		if c.eval(v) {
			return true
		}
	}
	return false
}

// numericValue reads a field's stored value as float64. Group
// components read the shared group destination. Non-numeric fields
// yield NaN.
func numericValue(v record.View, f *schema.Field) float64 {
	switch f.Type {
	case schema.TypeInt:
		return float64(v.Int32At(f.Offset))
	case schema.TypeShort:
		return float64(v.Int16At(f.Offset))
	case schema.TypeFloat:
		return float64(v.Float32At(f.Offset))
	case schema.TypeDouble, schema.TypeDegrees, schema.TypeDateMPC:
		return v.Float64At(f.Offset)
	case schema.TypeSign,
		schema.TypeHMSHours, schema.TypeHMSMinutes, schema.TypeHMSSeconds,
		schema.TypeDMSDegrees, schema.TypeDMSMinutes, schema.TypeDMSSeconds:
		return v.Float64At(f.DestOffset())
	default:
		return math.NaN()
	}
}

// stringValue reads a field's stored value as text, without trailing
// padding.
func stringValue(v record.View, f *schema.Field) string {
	if f.Type == schema.TypeDesignation {
		s, _ := v.Key().Designation()
		return s
	}
	return v.StringAt(f.Offset, f.Width)
}
