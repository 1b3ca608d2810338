package db

// Direction is a sort direction for OrderBy.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

const (
	opEq            = "=="
	opNe            = "!="
	opLt            = "<"
	opLte           = "<="
	opGt            = ">"
	opGte           = ">="
	opArrayContains = "array-contains"
)

type condition struct {
	field string
	op    string
	value any
}

// cursor is an exclusive compound (order value, document id) boundary.
type cursor struct {
	orderValue any
	id         string
}

// Query describes one collection query: equality / array-contains /
// range filters, a single order-by with direction, a limit, and an
// optional exclusive start-after cursor. Built fluently:
//
//	NewQuery("threads").ArrayContains("participant_ids", uid).
//		OrderBy("last_activity_at", Descending).Limit(50)
type Query struct {
	collection string
	conditions []condition
	orderField string
	orderDir   Direction
	limit      int64
	startAfter *cursor
}

// NewQuery creates a query against a collection.
func NewQuery(collection string) *Query {
	return &Query{collection: collection, orderDir: Ascending}
}

// Eq adds an equality condition.
func (q *Query) Eq(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opEq, value})
	return q
}

// Ne adds a not-equal condition.
func (q *Query) Ne(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opNe, value})
	return q
}

// Lt adds a less-than condition.
func (q *Query) Lt(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opLt, value})
	return q
}

// Lte adds a less-than-or-equal condition.
func (q *Query) Lte(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opLte, value})
	return q
}

// Gt adds a greater-than condition.
func (q *Query) Gt(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opGt, value})
	return q
}

// Gte adds a greater-than-or-equal condition.
func (q *Query) Gte(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opGte, value})
	return q
}

// ArrayContains adds a condition matching documents whose array field
// contains value.
func (q *Query) ArrayContains(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field, opArrayContains, value})
	return q
}

// OrderBy sets the sort field and direction. Document id is always the
// implicit tie-break, in the same direction, so results have a total order.
func (q *Query) OrderBy(field string, dir Direction) *Query {
	q.orderField = field
	q.orderDir = dir
	return q
}

// Limit caps the result set size.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// StartAfter positions the query strictly after the document holding
// orderValue in the order-by field and the given id. The boundary
// document itself is excluded; documents sharing its order value but
// sorting after it by id are included.
func (q *Query) StartAfter(orderValue any, id string) *Query {
	q.startAfter = &cursor{orderValue: orderValue, id: id}
	return q
}

// Collection returns the collection the query targets.
func (q *Query) Collection() string {
	return q.collection
}
