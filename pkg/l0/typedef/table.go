package typedef

import (
	"sort"
	"sync"
)

// Table maps symbolic type names to codes and codes to declared lengths.
// It is loaded once and read concurrently afterwards.
type Table struct {
	lock     sync.RWMutex
	outgoing map[string]byte
	incoming map[string]byte
	outNames map[byte]string
	inNames  map[byte]string
	lengths  map[byte]Length
	records  []Record
}

// NewTable creates a Table loaded with records.
func NewTable(records ...Record) (*Table, error) {
	t := &Table{}
	if err := t.Load(records); err != nil {
		return nil, err
	}
	return t, nil
}

type tableMaps struct {
	outgoing map[string]byte
	incoming map[string]byte
	outNames map[byte]string
	inNames  map[byte]string
	lengths  map[byte]Length
}

func (m *tableMaps) add(dir Direction, names map[string]byte, codes map[byte]string, rec Record) error {
	if _, exists := names[rec.Name]; exists {
		return &DuplicateTypeError{Direction: dir, Name: rec.Name, Code: rec.Code, Field: "name"}
	}
	if _, exists := codes[rec.Code]; exists {
		return &DuplicateTypeError{Direction: dir, Name: rec.Name, Code: rec.Code, Field: "code"}
	}
	names[rec.Name], codes[rec.Code] = rec.Code, rec.Name
	return nil
}

// Load replaces the content of the table with records.
// Nothing is changed if any record collides with another one in
// the same direction.
func (t *Table) Load(records []Record) error {
	m := tableMaps{
		outgoing: make(map[string]byte),
		incoming: make(map[string]byte),
		outNames: make(map[byte]string),
		inNames:  make(map[byte]string),
		lengths:  make(map[byte]Length),
	}
	for _, rec := range records {
		if rec.Direction.IsIncoming() {
			if err := m.add(DirIncoming, m.incoming, m.inNames, rec); err != nil {
				return err
			}
		}
		if rec.Direction.IsOutgoing() {
			if err := m.add(DirOutgoing, m.outgoing, m.outNames, rec); err != nil {
				return err
			}
		}
		declared, exists := m.lengths[rec.Code]
		switch {
		case !exists || !declared.IsDeclared():
			m.lengths[rec.Code] = rec.Length
		case rec.Length.IsDeclared() && rec.Length != declared:
			return &DuplicateTypeError{Direction: rec.Direction, Name: rec.Name, Code: rec.Code, Field: "length"}
		}
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Code < sorted[j].Code
	})

	t.lock.Lock()
	t.outgoing, t.incoming = m.outgoing, m.incoming
	t.outNames, t.inNames = m.outNames, m.inNames
	t.lengths, t.records = m.lengths, sorted
	t.lock.Unlock()
	return nil
}

// ResolveOutgoing gets the code of an outgoing type.
func (t *Table) ResolveOutgoing(name string) (byte, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if code, ok := t.outgoing[name]; ok {
		return code, nil
	}
	return 0, &UnknownTypeError{Direction: DirOutgoing, Name: name}
}

// ResolveIncoming gets the code of an incoming type.
func (t *Table) ResolveIncoming(name string) (byte, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if code, ok := t.incoming[name]; ok {
		return code, nil
	}
	return 0, &UnknownTypeError{Direction: DirIncoming, Name: name}
}

// LengthOf gets the declared length of a code. A code named by any
// record but without a declared length gets LengthUndeclared.
func (t *Table) LengthOf(code byte) (Length, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if l, ok := t.lengths[code]; ok {
		return l, nil
	}
	return LengthUndeclared, &UnknownTypeError{Code: code}
}

// IncomingName gets the incoming name of a code.
func (t *Table) IncomingName(code byte) (string, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	name, ok := t.inNames[code]
	return name, ok
}

// OutgoingName gets the outgoing name of a code.
func (t *Table) OutgoingName(code byte) (string, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	name, ok := t.outNames[code]
	return name, ok
}

// Records returns loaded records ordered by code.
func (t *Table) Records() []Record {
	t.lock.RLock()
	defer t.lock.RUnlock()
	records := make([]Record, len(t.records))
	copy(records, t.records)
	return records
}
