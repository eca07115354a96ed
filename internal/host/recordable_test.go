package host

import "testing"

func TestRecordableAppendAndLast(t *testing.T) {
	r := NewRecordable("p1_pressure", 0.0, DTypeFloat, nil)
	r.Append(1.5)
	r.Append(2.5)

	last, ok := r.Last()
	if !ok || last.(float64) != 2.5 {
		t.Fatalf("expected last=2.5, got %v ok=%v", last, ok)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3 (initial + 2 appends), got %d", r.Len())
	}
}

func TestRecordableSinkCalledOnAppend(t *testing.T) {
	var seenName string
	var seenValue any
	r := NewRecordable("m1_mass", 0.0, DTypeFloat, func(name string, value any) {
		seenName = name
		seenValue = value
	})
	r.Append(12.3)

	if seenName != "m1_mass" || seenValue.(float64) != 12.3 {
		t.Fatalf("sink not called with expected args: %s %v", seenName, seenValue)
	}
}

func TestRecordableEmptyLast(t *testing.T) {
	r := &Recordable{name: "unset"}
	if _, ok := r.Last(); ok {
		t.Fatalf("expected no value for a Recordable with nothing appended")
	}
}
