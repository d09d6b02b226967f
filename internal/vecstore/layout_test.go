package vecstore

import "testing"

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()
	if err := l.Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
	want := map[string]Region{
		"identity":    {0, 4},
		"spatial":     {4, 16},
		"semantic":    {20, 64},
		"activation":  {84, 64},
		"connections": {148, 64},
		"field":       {212, 32},
		"metadata":    {244, 12},
	}
	for _, r := range l.Regions() {
		if want[r.Name] != r.Region {
			t.Errorf("%s = %+v, want %+v", r.Name, r.Region, want[r.Name])
		}
	}
}

func TestScaledLayout(t *testing.T) {
	for _, dim := range []int{32, 64, 100, 512} {
		l, err := ScaledLayout(dim)
		if err != nil {
			t.Errorf("ScaledLayout(%d): %v", dim, err)
			continue
		}
		if l.Dimension != dim || l.Metadata.End() != dim {
			t.Errorf("ScaledLayout(%d) covers %d", dim, l.Metadata.End())
		}
	}
	if _, err := ScaledLayout(4); err == nil {
		t.Error("ScaledLayout(4) should fail")
	}
}

func TestLayoutValidate(t *testing.T) {
	l := DefaultLayout()
	l.Semantic.Len++
	if err := l.Validate(); err == nil {
		t.Error("overlapping regions should fail validation")
	}

	l = DefaultLayout()
	l.Dimension = 300
	if err := l.Validate(); err == nil {
		t.Error("gap at the end should fail validation")
	}
}
