package kmsplay

// Request accumulates property changes for one atomic transaction. Changes
// are grouped per object and flattened into the parallel-array layout the
// kernel consumes only when the commit is issued. A Request is single-use.
type Request struct {
	order []uint32
	objs  map[uint32]*requestObject
}

type requestObject struct {
	props  []uint32
	values []uint64
}

// NewRequest returns an empty transaction builder.
func NewRequest() *Request {
	return &Request{objs: make(map[uint32]*requestObject)}
}

// Set stages prop=value on the given object. A zero property handle marks a
// property the driver does not expose; it is skipped and Set reports false
// so callers can distinguish optional from required omissions.
func (r *Request) Set(objID uint32, prop propID, value uint64) bool {
	if prop == 0 {
		return false
	}
	obj, ok := r.objs[objID]
	if !ok {
		obj = &requestObject{}
		r.objs[objID] = obj
		r.order = append(r.order, objID)
	}
	obj.props = append(obj.props, uint32(prop))
	obj.values = append(obj.values, value)
	return true
}

// Empty reports whether nothing has been staged.
func (r *Request) Empty() bool { return len(r.order) == 0 }

// flatten produces the four parallel arrays of the kernel's transaction
// layout: object IDs, per-object property counts, and the property/value
// pairs concatenated in object order.
func (r *Request) flatten() (objs, counts, props []uint32, values []uint64) {
	objs = make([]uint32, 0, len(r.order))
	counts = make([]uint32, 0, len(r.order))
	for _, id := range r.order {
		obj := r.objs[id]
		objs = append(objs, id)
		counts = append(counts, uint32(len(obj.props)))
		props = append(props, obj.props...)
		values = append(values, obj.values...)
	}
	return objs, counts, props, values
}
