package icode

import (
	"io"
	"iter"
	"strings"
)

type node struct {
	in   Instr
	next *node
}

// List is a singly linked instruction sequence. Lists grow by appending
// single instructions or by merging whole lists onto the end; they are
// never spliced in the middle.
type List struct {
	head, tail *node
	n          int
}

func NewList() *List { return &List{} }

func (l *List) Append(ins ...Instr) {
	for _, in := range ins {
		nd := &node{in: in}
		if l.tail == nil {
			l.head = nd
		} else {
			l.tail.next = nd
		}
		l.tail = nd
		l.n++
	}
}

// Merge moves every instruction of o onto the end of l in O(1) and
// leaves o empty.
func (l *List) Merge(o *List) {
	if o == nil || o.head == nil || o == l {
		return
	}
	if l.tail == nil {
		l.head = o.head
	} else {
		l.tail.next = o.head
	}
	l.tail = o.tail
	l.n += o.n
	o.head, o.tail, o.n = nil, nil, 0
}

func (l *List) Len() int { return l.n }

func (l *List) Last() Instr {
	if l.tail == nil {
		return nil
	}
	return l.tail.in
}

func (l *List) All() iter.Seq[Instr] {
	return func(yield func(Instr) bool) {
		for nd := l.head; nd != nil; nd = nd.next {
			if !yield(nd.in) {
				return
			}
		}
	}
}

func (l *List) Slice() []Instr {
	out := make([]Instr, 0, l.n)
	for in := range l.All() {
		out = append(out, in)
	}
	return out
}

// Format writes one instruction per line. Labels start in column zero.
func (l *List) Format(w io.Writer, names []string) error {
	p := printer{names: names}
	for in := range l.All() {
		line := in.format(p)
		if _, ok := in.(*Mark); !ok {
			line = "\t" + line
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) String() string {
	var sb strings.Builder
	l.Format(&sb, nil)
	return sb.String()
}
