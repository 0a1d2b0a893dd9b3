package gotreesitter

// Quantifier says how many nodes a capture can hold in one match.
type Quantifier uint8

const (
	QuantifierZero Quantifier = iota
	QuantifierZeroOrOne
	QuantifierZeroOrMore
	QuantifierOne
	QuantifierOneOrMore
)

func (q Quantifier) String() string {
	switch q {
	case QuantifierZeroOrOne:
		return "?"
	case QuantifierZeroOrMore:
		return "*"
	case QuantifierOne:
		return "1"
	case QuantifierOneOrMore:
		return "+"
	default:
		return "0"
	}
}

// bounds returns the minimum (0 or 1) and maximum (0, 1 or 2 for many)
// number of nodes.
func (q Quantifier) bounds() (lo, hi int) {
	switch q {
	case QuantifierZeroOrOne:
		return 0, 1
	case QuantifierZeroOrMore:
		return 0, 2
	case QuantifierOne:
		return 1, 1
	case QuantifierOneOrMore:
		return 1, 2
	default:
		return 0, 0
	}
}

func quantifierFromBounds(lo, hi int) Quantifier {
	lo, hi = min(lo, 1), min(hi, 2)
	switch {
	case hi == 0:
		return QuantifierZero
	case lo == 0 && hi == 1:
		return QuantifierZeroOrOne
	case lo == 0:
		return QuantifierZeroOrMore
	case hi == 1:
		return QuantifierOne
	default:
		return QuantifierOneOrMore
	}
}

// join is the quantifier of a capture that occurs as q in one branch of an
// alternation and as o in another.
func (q Quantifier) join(o Quantifier) Quantifier {
	ql, qh := q.bounds()
	ol, oh := o.bounds()
	return quantifierFromBounds(min(ql, ol), max(qh, oh))
}

// add is the quantifier of a capture that occurs as q and then as o in a
// sequence.
func (q Quantifier) add(o Quantifier) Quantifier {
	ql, qh := q.bounds()
	ol, oh := o.bounds()
	return quantifierFromBounds(ql+ol, qh+oh)
}

// mul is the quantifier of a capture occurring as q inside a pattern
// repeated as o.
func (q Quantifier) mul(o Quantifier) Quantifier {
	ql, qh := q.bounds()
	ol, oh := o.bounds()
	return quantifierFromBounds(ql*ol, qh*oh)
}

// captureQuantifiers maps capture ids to quantifiers; absent ids are zero.
type captureQuantifiers map[uint32]Quantifier

func (c captureQuantifiers) addFor(id uint32, q Quantifier) {
	c[id] = c[id].add(q)
}

func (c captureQuantifiers) addAll(o captureQuantifiers) {
	for id, q := range o {
		c.addFor(id, q)
	}
}

func (c captureQuantifiers) joinAll(o captureQuantifiers) {
	for id, q := range o {
		c[id] = c[id].join(q)
	}
	for id, q := range c {
		if _, ok := o[id]; !ok {
			c[id] = q.join(QuantifierZero)
		}
	}
}

func (c captureQuantifiers) replace(o captureQuantifiers) {
	clear(c)
	for id, q := range o {
		c[id] = q
	}
}

func (c captureQuantifiers) mul(q Quantifier) {
	for id, own := range c {
		c[id] = own.mul(q)
	}
}
