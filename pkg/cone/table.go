package cone

// ObjectTable maps layout object indices to cone types and back.
// Built once, never mutated after construction.
type ObjectTable struct {
	toType   map[uint8]Type
	toObject [NumTypes]uint8
}

// NewObjectTable builds a table from index->type pairs. For each type, the first index
// of order that maps to it is the one used when writing.
func NewObjectTable(order []uint8, mapping map[uint8]Type) *ObjectTable {
	t := &ObjectTable{toType: make(map[uint8]Type, len(mapping))}
	seen := [NumTypes]bool{}
	for _, idx := range order {
		ct, ok := mapping[idx]
		if !ok {
			continue
		}
		t.toType[idx] = ct
		if !seen[ct] {
			t.toObject[ct] = idx
			seen[ct] = true
		}
	}
	return t
}

// LFSObjects is the autocross object table of Live for Speed.
// 20 is a red cone, used here for the small orange start/finish area cones.
var LFSObjects = NewObjectTable(
	[]uint8{25, 29, 30, 23, 24, 27, 20},
	map[uint8]Type{
		25: TypeUnknown,
		29: TypeYellow,
		30: TypeYellow,
		23: TypeBlue,
		24: TypeBlue,
		27: TypeOrangeBig,
		20: TypeOrangeSmall,
	},
)

// TypeOf returns the cone type of an object index; ok is false for non-cone objects.
func (t *ObjectTable) TypeOf(objectIndex uint8) (ct Type, ok bool) {
	ct, ok = t.toType[objectIndex]
	return
}

// ObjectOf returns the object index written for a cone type.
func (t *ObjectTable) ObjectOf(ct Type) uint8 {
	return t.toObject[ct]
}
