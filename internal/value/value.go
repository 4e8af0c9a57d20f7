package value

import "time"

// Kind of data a Value holds. Null is the zero value.
type TypeTag int

const (
	TypeNull TypeTag = iota
	TypeInteger
	TypeFloat
	TypeBool
	TypeText
	TypeVector
	TypePoint
	TypePolyline
	TypePolygon
	TypeTextDoc
	TypeTimestamp
)

func (t TypeTag) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeBool:
		return "BOOLEAN"
	case TypeText:
		return "TEXT"
	case TypeVector:
		return "VECTOR"
	case TypePoint:
		return "POINT"
	case TypePolyline:
		return "POLYLINE"
	case TypePolygon:
		return "POLYGON"
	case TypeTextDoc:
		return "TEXTDOC"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "NULL"
	}
}

// Point is a 2-D coordinate.
type Point struct {
	X, Y float64
}

// Value is the tagged-union scalar type every row slot holds. Exactly
// one of the typed fields is meaningful, selected by Tag; this avoids
// the allocation and type-assertion cost of an interface{} union for
// the hot path (row encode/decode, distance-kernel evaluation).
type Value struct {
	Tag   TypeTag
	I     int64
	F     float64
	B     bool
	S     string   // Text and TextDoc share the string slot
	Vec   []float32
	Pt    Point
	Line  []Point // Polyline
	Poly  []Point // Polygon
	TS    int64   // microseconds since Unix epoch
}

func Null() Value                  { return Value{Tag: TypeNull} }
func Integer(i int64) Value        { return Value{Tag: TypeInteger, I: i} }
func Float(f float64) Value        { return Value{Tag: TypeFloat, F: f} }
func Bool(b bool) Value            { return Value{Tag: TypeBool, B: b} }
func Text(s string) Value          { return Value{Tag: TypeText, S: s} }
func TextDoc(s string) Value       { return Value{Tag: TypeTextDoc, S: s} }
func Vector(v []float32) Value     { return Value{Tag: TypeVector, Vec: v} }
func PointVal(x, y float64) Value  { return Value{Tag: TypePoint, Pt: Point{X: x, Y: y}} }
func Polyline(pts []Point) Value   { return Value{Tag: TypePolyline, Line: pts} }
func Polygon(pts []Point) Value    { return Value{Tag: TypePolygon, Poly: pts} }
func Timestamp(us int64) Value     { return Value{Tag: TypeTimestamp, TS: us} }
func TimestampOf(t time.Time) Value {
	return Value{Tag: TypeTimestamp, TS: t.UnixMicro()}
}

func (v Value) IsNull() bool { return v.Tag == TypeNull }

// AsFloat64 returns v as a float64 for any numeric type, used by
// comparisons and ordering between Integer and Float.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Tag {
	case TypeInteger:
		return float64(v.I), true
	case TypeFloat:
		return v.F, true
	case TypeTimestamp:
		return float64(v.TS), true
	default:
		return 0, false
	}
}

// Equal reports value equality. Numeric pairs compare by value,
// booleans compare with booleans, and text compares with text or
// text documents; NULL equals only NULL, and every other pair
// (vectors and spatial values included) is never equal.
func (v Value) Equal(o Value) bool {
	if v.Tag == TypeNull || o.Tag == TypeNull {
		return v.Tag == TypeNull && o.Tag == TypeNull
	}
	if vf, ok := v.AsFloat64(); ok {
		if of, ok2 := o.AsFloat64(); ok2 {
			return vf == of
		}
	}
	switch v.Tag {
	case TypeBool:
		return o.Tag == TypeBool && v.B == o.B
	case TypeText, TypeTextDoc:
		return (o.Tag == TypeText || o.Tag == TypeTextDoc) && v.S == o.S
	}
	return false
}

// Compare returns -1/0/1 comparing v to o, and ok=false when the pair
// is not numerically (or otherwise directly) comparable — ordering
// between incomparable types is left undefined by the spec, so callers
// must check ok.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if vf, ok1 := v.AsFloat64(); ok1 {
		if of, ok2 := o.AsFloat64(); ok2 {
			switch {
			case vf < of:
				return -1, true
			case vf > of:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if (v.Tag == TypeText || v.Tag == TypeTextDoc) && (o.Tag == TypeText || o.Tag == TypeTextDoc) {
		switch {
		case v.S < o.S:
			return -1, true
		case v.S > o.S:
			return 1, true
		default:
			return 0, true
		}
	}
	if v.Tag == TypeBool && o.Tag == TypeBool {
		if v.B == o.B {
			return 0, true
		}
		if !v.B {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
